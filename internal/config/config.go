// Package config provides configuration management for the saaskit cache and
// coordination layer. It loads configuration from environment variables with
// sensible defaults and validates it so the process starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Ops server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Cache Backend Selection:
//   - CACHE_BACKEND: "auto", "memory" or "redis" (default: auto). With "auto"
//     the Redis backend is selected when REDIS_ADDRESS is set, otherwise the
//     in-process memory backend is used.
//   - REDIS_ADDRESS: Redis server address (host:port); empty selects memory
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - CACHE_KEY_PREFIX: Prefix applied to every cache key (default: "")
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT: Default rate limit per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit time window (default: 60s)
//   - RATE_LIMIT_STRATEGY: "fixed" or "sliding" (default: fixed)
//   - RATE_LIMIT_TYPE: "local" or "distributed" (default: distributed). The
//     local type counts in-process token buckets; distributed counts in the
//     shared cache so the limit holds across instances.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the cache layer. All string
// fields correspond to environment variables that can be set to override the
// default values. Load() does not validate; call Validate() before use.
type Config struct {
	// Application settings
	Port     string // Ops server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Cache backend selection
	CacheBackend   string // "auto", "memory" or "redis"
	RedisAddress   string // Redis server address (host:port); empty selects memory
	RedisPassword  string // Redis authentication password
	RedisDB        string // Redis database number (0-15)
	RedisPoolSize  string // Redis connection pool size
	CacheKeyPrefix string // Prefix applied to every cache key

	// Rate limiting configuration
	RateLimitEnabled  bool   // Whether rate limiting is enabled
	RateLimitDefault  string // Default requests per window
	RateLimitWindow   string // Rate limiting time window (e.g., "60s", "1m")
	RateLimitStrategy string // "fixed" or "sliding"
	RateLimitType     string // "local" or "distributed"
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding
// default value is used.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Cache backend selection
		CacheBackend:   getEnv("CACHE_BACKEND", "auto"),
		RedisAddress:   getEnv("REDIS_ADDRESS", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnv("REDIS_DB", "0"),
		RedisPoolSize:  getEnv("REDIS_POOL_SIZE", "10"),
		CacheKeyPrefix: getEnv("CACHE_KEY_PREFIX", ""),

		// Rate limiting configuration
		RateLimitEnabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault:  getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:   getEnv("RATE_LIMIT_WINDOW", "60s"),
		RateLimitStrategy: getEnv("RATE_LIMIT_STRATEGY", "fixed"),
		RateLimitType:     getEnv("RATE_LIMIT_TYPE", "distributed"),
	}
}

// getEnv retrieves an environment variable value or returns a default value
// if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a
// default value when unset or unparsable.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all values are
// usable before the process starts serving.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.CacheBackend {
	case "auto", "memory", "redis":
		// Valid backend selections
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'auto', 'memory' or 'redis'")
	}

	if c.CacheBackend == "redis" && c.RedisAddress == "" {
		return fmt.Errorf("REDIS_ADDRESS is required when CACHE_BACKEND is 'redis'")
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return fmt.Errorf("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if _, err := time.ParseDuration(c.RateLimitWindow); err != nil {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
		switch c.RateLimitStrategy {
		case "fixed", "sliding":
			// Valid strategies
		default:
			return fmt.Errorf("RATE_LIMIT_STRATEGY must be 'fixed' or 'sliding'")
		}
		switch c.RateLimitType {
		case "local", "distributed":
			// Valid limiter backends
		default:
			return fmt.Errorf("RATE_LIMIT_TYPE must be 'local' or 'distributed'")
		}
	}

	return nil
}

// RedisDBNumber returns the parsed Redis database number. Call Validate first.
func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

// RedisPoolSizeNumber returns the parsed pool size. Call Validate first.
func (c *Config) RedisPoolSizeNumber() int {
	size, _ := strconv.Atoi(c.RedisPoolSize)
	return size
}

// RateLimitWindowDuration returns the parsed rate limit window. Call Validate first.
func (c *Config) RateLimitWindowDuration() time.Duration {
	window, _ := time.ParseDuration(c.RateLimitWindow)
	return window
}

// RateLimitDefaultNumber returns the parsed default limit. Call Validate first.
func (c *Config) RateLimitDefaultNumber() int {
	limit, _ := strconv.Atoi(c.RateLimitDefault)
	return limit
}
