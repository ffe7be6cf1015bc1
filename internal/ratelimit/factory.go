package ratelimit

import (
	"saaskit/internal/cache"
	apperrors "saaskit/internal/common/errors"
	"saaskit/internal/common/logging"
)

var errClientRequired = apperrors.ConfigError("cache client is required for distributed rate limiter")

// New constructs the limiter selected by the configuration. The distributed
// backend needs a cache client; the local backend ignores it.
func New(config Config, client *cache.Client, logger logging.Logger) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case BackendLocal:
		return NewLocalLimiter(config)
	case BackendDistributed, "":
		return NewDistributedLimiter(config, client, logger)
	default:
		return nil, apperrors.ConfigError("unknown rate limit backend type")
	}
}
