package ratelimit

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// localLimiter rate limits within this process using token buckets from
// golang.org/x/time/rate. Per-key buckets live in an expiring registry so
// idle identifiers do not accumulate forever.
type localLimiter struct {
	config Config

	globalLimiter *rate.Limiter

	mu       sync.Mutex
	registry *gocache.Cache
}

// NewLocalLimiter creates a process-local limiter.
func NewLocalLimiter(config Config) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	perSecond := rate.Limit(float64(config.Limit) / config.Window.Seconds())
	return &localLimiter{
		config:        config,
		globalLimiter: rate.NewLimiter(perSecond, config.BurstSize),
		registry:      gocache.New(config.KeyTTL, 2*config.KeyTTL),
	}, nil
}

func (rl *localLimiter) TryAcquire() bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.globalLimiter.Allow()
}

func (rl *localLimiter) TryAcquireForKey(key string) bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.limiterForKey(key).Allow()
}

func (rl *localLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}
	return rl.globalLimiter.Wait(ctx)
}

func (rl *localLimiter) WaitForKey(ctx context.Context, key string) error {
	if !rl.config.Enabled {
		return nil
	}
	return rl.limiterForKey(key).Wait(ctx)
}

// limiterForKey returns the key's bucket, creating it on first use. Each
// access refreshes the registry TTL so active keys stay resident.
func (rl *localLimiter) limiterForKey(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cached, ok := rl.registry.Get(key); ok {
		limiter := cached.(*rate.Limiter)
		rl.registry.SetDefault(key, limiter)
		return limiter
	}

	perSecond := rate.Limit(float64(rl.config.Limit) / rl.config.Window.Seconds())
	limiter := rate.NewLimiter(perSecond, rl.config.BurstSize)
	rl.registry.SetDefault(key, limiter)
	return limiter
}

func (rl *localLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":             string(BackendLocal),
		"enabled":          rl.config.Enabled,
		"limit":            rl.config.Limit,
		"window":           rl.config.Window.String(),
		"burst":            rl.config.BurstSize,
		"available_tokens": rl.globalLimiter.Tokens(),
		"active_keys":      rl.registry.ItemCount(),
	}
}

// Health always succeeds: the local limiter has no external dependency.
func (rl *localLimiter) Health() error {
	return nil
}

var _ Limiter = (*localLimiter)(nil)
