package cache

import (
	"context"
	"time"

	apperrors "saaskit/internal/common/errors"
	"saaskit/internal/common/utils"
)

// lockKeyPrefix namespaces lock keys away from regular cache entries.
const lockKeyPrefix = "lock:"

// Lock is one acquisition attempt on a named lock. Only a holder that
// acquired the lock may release it, and release is token-guarded: if the
// lock expired and another holder reacquired it, this holder's Release is a
// silent no-op rather than stealing the new holder's lock.
type Lock struct {
	client *Client
	key    string
	token  string
	held   bool
}

// AcquireLock attempts to take the named lock for the given TTL. Acquisition
// is a single conditional set-if-absent, so two concurrent acquirers can
// never both succeed. The returned Lock reports the outcome via Acquired;
// contention is not an error. The TTL doubles as crash recovery: a holder
// that dies without releasing lets the lock self-expire.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token, err := utils.GenerateLockToken()
	if err != nil {
		return nil, apperrors.InternalError("failed to generate lock token", err)
	}
	acquired, err := c.SetNX(ctx, lockKeyPrefix+key, token, ttl)
	if err != nil {
		return nil, err
	}
	return &Lock{
		client: c,
		key:    key,
		token:  token,
		held:   acquired,
	}, nil
}

// Acquired reports whether this attempt took the lock.
func (l *Lock) Acquired() bool {
	return l.held
}

// Key returns the lock's name as given to AcquireLock.
func (l *Lock) Key() string {
	return l.key
}

// Token returns the opaque holder token. Needed when the release or extend
// happens in a different process than the acquisition.
func (l *Lock) Token() string {
	return l.token
}

// Release frees the lock if this holder still owns it. When the stored token
// no longer matches (the lock expired and was reacquired), nothing is
// deleted and no error is returned. Releasing a lock that was never acquired
// is a no-op.
//
// The read-compare-delete is two calls, not one atomic operation; in the
// worst case the lock expires between them and a racing acquirer's lock is
// deleted. The window is a single round trip against a TTL measured in
// seconds, which the callers here accept.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false

	stored, found, err := l.client.Get(ctx, lockKeyPrefix+l.key)
	if err != nil {
		return err
	}
	if !found || stored != l.token {
		return nil
	}
	_, err = l.client.Del(ctx, lockKeyPrefix+l.key)
	return err
}

// Extend pushes the lock's expiry out to a fresh TTL, reporting whether this
// holder still owned the lock.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if !l.held {
		return false, nil
	}
	extended, err := l.client.ExtendLock(ctx, l.key, l.token, ttl)
	if err != nil {
		return false, err
	}
	if !extended {
		l.held = false
	}
	return extended, nil
}

// ExtendLock refreshes the TTL on the named lock when the presented token
// still matches the stored one. It reports false when the lock is gone or
// held by someone else.
func (c *Client) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	stored, found, err := c.Get(ctx, lockKeyPrefix+key)
	if err != nil {
		return false, err
	}
	if !found || stored != token {
		return false, nil
	}
	return c.Expire(ctx, lockKeyPrefix+key, ttl)
}
