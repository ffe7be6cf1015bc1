package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saaskit/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	t.Run("auto without redis address selects memory", func(t *testing.T) {
		cfg := FromAppConfig(&config.Config{CacheBackend: "auto"})
		assert.Equal(t, TypeMemory, cfg.Type)
		assert.Nil(t, cfg.Redis)
	})

	t.Run("auto with redis address selects redis", func(t *testing.T) {
		cfg := FromAppConfig(&config.Config{
			CacheBackend:   "auto",
			RedisAddress:   "redis.internal:6379",
			RedisDB:        "2",
			RedisPoolSize:  "20",
			CacheKeyPrefix: "app:",
		})
		assert.Equal(t, TypeRedis, cfg.Type)
		require.NotNil(t, cfg.Redis)
		assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
		assert.Equal(t, 2, cfg.Redis.DB)
		assert.Equal(t, 20, cfg.Redis.PoolSize)
		assert.Equal(t, "app:", cfg.Redis.KeyPrefix)
	})

	t.Run("explicit memory ignores redis address", func(t *testing.T) {
		cfg := FromAppConfig(&config.Config{
			CacheBackend: "memory",
			RedisAddress: "redis.internal:6379",
		})
		assert.Equal(t, TypeMemory, cfg.Type)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		client, err := New(Config{Type: TypeMemory}, nil)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, TypeMemory, client.Backend())
		assert.NoError(t, client.Ping(ctx))
	})

	t.Run("redis backend", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := New(Config{
			Type:  TypeRedis,
			Redis: &RedisConfig{Address: mr.Addr()},
		}, nil)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, TypeRedis, client.Backend())
		assert.NoError(t, client.Ping(ctx))
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		client, err := New(Config{
			Type:  TypeRedis,
			Redis: &RedisConfig{Address: "127.0.0.1:1"},
		}, nil)
		require.NoError(t, err, "degraded mode must not fail startup")
		defer client.Close()

		assert.Equal(t, TypeMemory, client.Backend())
		assert.NoError(t, client.Ping(ctx))
	})

	t.Run("unknown backend type", func(t *testing.T) {
		_, err := New(Config{Type: "mongo"}, nil)
		assert.Error(t, err)
	})
}
