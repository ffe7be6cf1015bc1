package ratelimit

import (
	"context"
)

// Limiter is the rate limiting interface shared by the local and distributed
// backends. Keyed methods restrict per identifier (an IP, a user, an API
// key); unkeyed methods apply one process-wide limit.
type Limiter interface {
	// TryAcquire attempts to take one unit of the global limit without
	// blocking.
	TryAcquire() bool

	// TryAcquireForKey attempts to take one unit of the named key's limit
	// without blocking.
	TryAcquireForKey(key string) bool

	// Wait blocks until the global limit admits one request or the context
	// is done.
	Wait(ctx context.Context) error

	// WaitForKey blocks until the named key's limit admits one request or
	// the context is done.
	WaitForKey(ctx context.Context, key string) error

	// Stats reports limiter internals for diagnostics endpoints.
	Stats() map[string]interface{}

	// Health reports whether the limiter's backing store is reachable.
	Health() error
}
