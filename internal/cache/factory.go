package cache

import (
	"fmt"

	apperrors "saaskit/internal/common/errors"
	"saaskit/internal/common/logging"
	"saaskit/internal/config"
)

// Type identifies a cache backend implementation.
type Type string

const (
	// TypeMemory selects the in-process backend.
	TypeMemory Type = "memory"
	// TypeRedis selects the shared Redis backend.
	TypeRedis Type = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Type  Type         `json:"type"`
	Redis *RedisConfig `json:"redis,omitempty"`
}

// FromAppConfig maps the application configuration onto a backend selection.
// The "auto" backend resolves to Redis when a Redis address is configured and
// to memory otherwise.
func FromAppConfig(cfg *config.Config) Config {
	backend := TypeMemory
	switch cfg.CacheBackend {
	case "redis":
		backend = TypeRedis
	case "auto":
		if cfg.RedisAddress != "" {
			backend = TypeRedis
		}
	}

	c := Config{Type: backend}
	if backend == TypeRedis {
		c.Redis = &RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDBNumber(),
			PoolSize:  cfg.RedisPoolSizeNumber(),
			KeyPrefix: cfg.CacheKeyPrefix,
		}
	}
	return c
}

// New constructs a Client over the configured backend. When the Redis
// backend cannot be reached at startup the client falls back to the
// in-process backend with a warning instead of failing, so a missing cache
// never blocks the application from starting.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	switch cfg.Type {
	case TypeRedis:
		store, err := NewRedisStore(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis backend unavailable, falling back to in-process cache",
				logging.String("error", err.Error()),
			)
			return NewClient(NewMemoryStore(logger), TypeMemory, logger), nil
		}
		logger.Info("cache backend ready",
			logging.String("backend", string(TypeRedis)),
			logging.String("address", cfg.Redis.Address),
		)
		return NewClient(store, TypeRedis, logger), nil
	case TypeMemory, "":
		logger.Info("cache backend ready", logging.String("backend", string(TypeMemory)))
		return NewClient(NewMemoryStore(logger), TypeMemory, logger), nil
	default:
		return nil, apperrors.ConfigError(fmt.Sprintf("unknown cache backend type: %s", cfg.Type))
	}
}
