package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.CacheBackend)
	assert.Equal(t, "", cfg.RedisAddress)
	assert.Equal(t, "0", cfg.RedisDB)
	assert.Equal(t, "10", cfg.RedisPoolSize)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, "100", cfg.RateLimitDefault)
	assert.Equal(t, "60s", cfg.RateLimitWindow)
	assert.Equal(t, "fixed", cfg.RateLimitStrategy)
	assert.Equal(t, "distributed", cfg.RateLimitType)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDRESS", "redis.internal:6379")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_STRATEGY", "sliding")
	t.Setenv("RATE_LIMIT_TYPE", "local")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddress)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, "sliding", cfg.RateLimitStrategy)
	assert.Equal(t, "local", cfg.RateLimitType)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8080",
			LogLevel:          "info",
			CacheBackend:      "auto",
			RedisDB:           "0",
			RedisPoolSize:     "10",
			RateLimitEnabled:  true,
			RateLimitDefault:  "100",
			RateLimitWindow:   "60s",
			RateLimitStrategy: "fixed",
			RateLimitType:     "distributed",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := valid()
		cfg.Port = "not-a-port"
		assert.Error(t, cfg.Validate())

		cfg.Port = "70000"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid backend", func(t *testing.T) {
		cfg := valid()
		cfg.CacheBackend = "memcached"
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend requires address", func(t *testing.T) {
		cfg := valid()
		cfg.CacheBackend = "redis"
		assert.Error(t, cfg.Validate())

		cfg.RedisAddress = "localhost:6379"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("redis db range", func(t *testing.T) {
		cfg := valid()
		cfg.RedisAddress = "localhost:6379"
		cfg.RedisDB = "16"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rate limit settings", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimitDefault = "0"
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.RateLimitWindow = "soon"
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.RateLimitStrategy = "leaky"
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.RateLimitType = "regional"
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.RateLimitType = "local"
		assert.NoError(t, cfg.Validate())

		// Disabled rate limiting skips those checks.
		cfg = valid()
		cfg.RateLimitEnabled = false
		cfg.RateLimitDefault = "0"
		assert.NoError(t, cfg.Validate())
	})
}

func TestTypedAccessors(t *testing.T) {
	cfg := &Config{
		RedisDB:          "3",
		RedisPoolSize:    "25",
		RateLimitDefault: "50",
		RateLimitWindow:  "90s",
	}

	assert.Equal(t, 3, cfg.RedisDBNumber())
	assert.Equal(t, 25, cfg.RedisPoolSizeNumber())
	assert.Equal(t, 50, cfg.RateLimitDefaultNumber())
	require.Equal(t, 90*time.Second, cfg.RateLimitWindowDuration())
}
