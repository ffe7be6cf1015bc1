// Package locks layers managed distributed locking on top of the cache
// layer's lock primitive. A managed lock is renewed automatically in the
// background so long-running critical sections do not lose the lock to TTL
// expiry, and it is cleaned up gracefully on release or shutdown.
//
// Two implementations exist: Manager, which works against any cache backend
// through the token-guarded lock primitive, and RedsyncManager, which uses
// the Redlock algorithm when the Redis backend is active. NewLockManager
// picks the right one for the configured backend.
//
// Example usage:
//
//	manager := locks.NewManager(cacheClient)
//	defer manager.Close()
//
//	lock, err := manager.AcquireLock(ctx, "billing-event-123", 30*time.Second)
//	if err != nil {
//		return err // someone else is processing this event
//	}
//	defer lock.Release(ctx)
//
//	if lock.IsHeld() {
//		// exclusive section
//	}
package locks

import (
	"context"
	"sync"
	"time"

	"saaskit/internal/cache"
	apperrors "saaskit/internal/common/errors"
)

// Lock is a managed distributed lock held by this process.
type Lock interface {
	// Key returns the lock's name.
	Key() string

	// Extend changes the expiration used by the automatic renewal cycle.
	Extend(ctx context.Context, expiration time.Duration) error

	// Release stops renewal and frees the lock. Safe to call more than once.
	Release(ctx context.Context) error

	// IsHeld reports whether this instance still holds the lock. Local
	// state only; it does not query the backend.
	IsHeld() bool
}

// LockClient is what Manager needs from the cache layer.
type LockClient interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

// Manager manages token-guarded locks over any cache backend. It tracks the
// locks held by this process and renews each one in the background at 1/3 of
// its expiration interval.
//
// Manager is safe for concurrent use.
type Manager struct {
	client     LockClient
	localLocks map[string]*localLock
	mutex      sync.RWMutex
}

type localLock struct {
	underlying *cache.Lock
	key        string
	expiration time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	manager    *Manager
}

// NewManager creates a lock manager over the given cache client.
func NewManager(client LockClient) *Manager {
	return &Manager{
		client:     client,
		localLocks: make(map[string]*localLock),
	}
}

// AcquireLock takes the named lock for the given expiration and starts
// background renewal. When the lock is already held elsewhere an error of
// type lock is returned; callers treat that as "someone else has it", not as
// a backend failure.
func (m *Manager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	acquired, err := m.client.AcquireLock(ctx, key, expiration)
	if err != nil {
		return nil, apperrors.LockError("failed to acquire distributed lock", err)
	}
	if !acquired.Acquired() {
		return nil, apperrors.LockError("lock already held by another process", nil).
			WithContext("key", key)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &localLock{
		underlying: acquired,
		key:        key,
		expiration: expiration,
		ctx:        lockCtx,
		cancel:     cancel,
		manager:    m,
	}

	m.mutex.Lock()
	m.localLocks[key] = lock
	m.mutex.Unlock()

	go m.renewLock(lock)

	return lock, nil
}

// renewLock keeps one lock alive until its context is cancelled. Renewal
// runs at 1/3 of the expiration interval, minimum 1 second. A failed or
// rejected renewal means the lock is already lost; the local state is
// cleaned up so IsHeld turns false.
func (m *Manager) renewLock(lock *localLock) {
	renewInterval := lock.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.underlying.Extend(ctx, lock.expiration)
			cancel()

			if err != nil || !ok {
				m.releaseLock(lock)
				return
			}
		}
	}
}

// releaseLock removes local tracking, stops renewal and frees the lock in
// the backend. Safe to call multiple times for the same lock.
func (m *Manager) releaseLock(lock *localLock) {
	m.mutex.Lock()
	delete(m.localLocks, lock.key)
	m.mutex.Unlock()

	lock.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = lock.underlying.Release(ctx)
}

// AcquireWebhookLock guards processing of one inbound webhook event so only
// one handler instance works on it at a time. Five minutes covers slow
// downstream calls; the renewal cycle extends it if processing runs longer.
func (m *Manager) AcquireWebhookLock(ctx context.Context, eventID string) (Lock, error) {
	return m.AcquireLock(ctx, "webhook:"+eventID, 5*time.Minute)
}

// AcquireJobLock coordinates which instance runs a recurring background job.
func (m *Manager) AcquireJobLock(ctx context.Context, jobID string) (Lock, error) {
	return m.AcquireLock(ctx, "job:"+jobID, 30*time.Second)
}

// Close stops renewal for every held lock and clears local tracking. The
// locks themselves expire naturally in the backend.
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, lock := range m.localLocks {
		lock.cancel()
	}

	m.localLocks = make(map[string]*localLock)
	return nil
}

func (l *localLock) Key() string {
	return l.key
}

// Extend updates the expiration used by the renewal cycle. The change takes
// effect on the next renewal; it does not immediately touch the backend.
func (l *localLock) Extend(_ context.Context, expiration time.Duration) error {
	l.expiration = expiration
	return nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.manager.releaseLock(l)
	return nil
}

func (l *localLock) IsHeld() bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
		return true
	}
}
