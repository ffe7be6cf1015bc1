package ratelimit

import (
	"context"
	"time"

	"saaskit/internal/cache"
	"saaskit/internal/common/logging"
)

// globalKey is the identifier used for the unkeyed limit.
const globalKey = "global"

// distributedLimiter counts in the shared cache so one limit holds across
// all instances. The algorithm comes from the configured strategy: fixed
// window for cheap coarse limiting, sliding window where boundary bursts
// matter.
//
// The limiter fails open: when the backing store is unreachable a check
// admits the request and logs, because denying all traffic on a cache outage
// is a worse failure than briefly not limiting.
type distributedLimiter struct {
	config Config
	client *cache.Client
	logger logging.Logger
}

// NewDistributedLimiter creates a limiter counting in the given cache client.
func NewDistributedLimiter(config Config, client *cache.Client, logger logging.Logger) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errClientRequired
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &distributedLimiter{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// Check runs one rate limit decision for the key and returns the full
// result, for callers that need the remaining/reset values (the HTTP
// middleware puts them in response headers).
func (rl *distributedLimiter) Check(ctx context.Context, key string) (*cache.RateLimitResult, error) {
	if !rl.config.Enabled {
		return &cache.RateLimitResult{
			Allowed:   true,
			Remaining: rl.config.Limit,
			ResetIn:   rl.config.Window,
		}, nil
	}

	if rl.config.Strategy == StrategySliding {
		return rl.client.CheckSlidingWindowRateLimit(ctx, key, rl.config.Limit, rl.config.Window)
	}
	return rl.client.CheckRateLimit(ctx, key, rl.config.Limit, rl.config.Window)
}

func (rl *distributedLimiter) TryAcquire() bool {
	return rl.TryAcquireForKey(globalKey)
}

func (rl *distributedLimiter) TryAcquireForKey(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := rl.Check(ctx, key)
	if err != nil {
		rl.logger.Warn("rate limit check failed, admitting request",
			logging.String("key", key),
			logging.String("error", err.Error()),
		)
		return true
	}
	return result.Allowed
}

func (rl *distributedLimiter) Wait(ctx context.Context) error {
	return rl.WaitForKey(ctx, globalKey)
}

// WaitForKey polls the limit until admitted. The retry pause follows the
// limiter's reset estimate, capped so a long window does not turn into a
// single long sleep that overshoots the actual reset.
func (rl *distributedLimiter) WaitForKey(ctx context.Context, key string) error {
	const maxPause = time.Second

	for {
		result, err := rl.Check(ctx, key)
		if err != nil {
			return err
		}
		if result.Allowed {
			return nil
		}

		pause := result.ResetIn
		if pause <= 0 || pause > maxPause {
			pause = maxPause
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rl *distributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":     string(BackendDistributed),
		"enabled":  rl.config.Enabled,
		"limit":    rl.config.Limit,
		"window":   rl.config.Window.String(),
		"strategy": string(rl.config.Strategy),
		"backend":  string(rl.client.Backend()),
	}
}

func (rl *distributedLimiter) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rl.client.Ping(ctx)
}

var _ Limiter = (*distributedLimiter)(nil)
