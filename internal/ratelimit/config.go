// Package ratelimit provides request rate limiting for the application's
// HTTP surface and background workers. Two backends are available: a local
// token-bucket limiter for single-instance deployments, and a distributed
// limiter that counts in the shared cache so the limit holds across
// instances. The distributed limiter supports both the fixed-window and
// sliding-window algorithms from the cache layer.
package ratelimit

import (
	"fmt"
	"time"

	appconfig "saaskit/internal/config"
)

// Strategy selects the counting algorithm for the distributed backend.
type Strategy string

const (
	// StrategyFixed is the cheap fixed-window counter.
	StrategyFixed Strategy = "fixed"
	// StrategySliding is the accurate sliding-window counter.
	StrategySliding Strategy = "sliding"
)

// BackendType selects where the limiter counts.
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
)

// Config holds rate limiter settings.
type Config struct {
	Enabled  bool          `json:"enabled"`
	Limit    int           `json:"limit"`  // requests per window
	Window   time.Duration `json:"window"` // window length
	Strategy Strategy      `json:"strategy"`
	Type     BackendType   `json:"type"`

	// BurstSize caps instantaneous bursts on the local backend. Defaults to
	// Limit when unset.
	BurstSize int `json:"burst_size,omitempty"`

	// KeyTTL is how long an idle per-key limiter is kept on the local
	// backend before eviction. Defaults to twice the window.
	KeyTTL time.Duration `json:"key_ttl,omitempty"`
}

// Validate checks the configuration and fills in derived defaults.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}

	switch c.Strategy {
	case StrategyFixed, StrategySliding:
	case "":
		c.Strategy = StrategyFixed
	default:
		return fmt.Errorf("unknown rate limit strategy %q", c.Strategy)
	}

	switch c.Type {
	case BackendLocal, BackendDistributed:
	case "":
		c.Type = BackendDistributed
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.Type)
	}

	if c.BurstSize <= 0 {
		c.BurstSize = c.Limit
	}
	if c.KeyTTL <= 0 {
		c.KeyTTL = 2 * c.Window
	}

	return nil
}

// FromAppConfig maps the application configuration onto limiter settings.
// Call config.Validate first so the typed accessors are safe.
func FromAppConfig(cfg *appconfig.Config) Config {
	return Config{
		Enabled:  cfg.RateLimitEnabled,
		Limit:    cfg.RateLimitDefaultNumber(),
		Window:   cfg.RateLimitWindowDuration(),
		Strategy: Strategy(cfg.RateLimitStrategy),
		Type:     BackendType(cfg.RateLimitType),
	}
}
