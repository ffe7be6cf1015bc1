package cache

import (
	"context"
	"time"

	"saaskit/internal/common/logging"
)

// Client is the handle the rest of the application uses. It embeds a Store,
// so every backend primitive is available directly, and layers the
// coordination helpers on top: GetOrSet, InvalidatePattern, rate limiting
// (ratelimit.go) and distributed locks (lock.go).
type Client struct {
	Store

	backend Type
	logger  logging.Logger

	// now is replaceable in tests to simulate clock advancement for the
	// rate limit windows.
	now func() time.Time
}

// NewClient wraps a concrete Store. Most callers construct through New.
func NewClient(store Store, backend Type, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Client{
		Store:   store,
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Backend reports which backend serves this client.
func (c *Client) Backend() Type {
	return c.backend
}

// GetOrSet returns the cached value for key, or computes, stores and returns
// it on a miss. A compute error is returned without caching anything. When
// the computed value cannot be stored the value is still returned; callers
// get a working result and the next request recomputes.
//
// The ttl comes before the compute closure so the closure, usually a
// multi-line literal, sits last in the call.
func (c *Client) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	value, found, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		return value, nil
	}

	computed, err := compute()
	if err != nil {
		return nil, err
	}

	if err := c.Set(ctx, key, computed, ttl); err != nil {
		c.logger.Warn("failed to cache computed value",
			logging.String("key", key),
			logging.String("error", err.Error()),
		)
	}
	return computed, nil
}

// InvalidatePattern deletes every key matching the glob pattern and reports
// how many were removed.
func (c *Client) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := c.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.Del(ctx, keys...)
}
