package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "saaskit/internal/common/errors"
	"saaskit/internal/common/logging"
)

// RedisConfig holds the connection settings for the Redis backend.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`

	// KeyPrefix, when set, is prepended to every key so multiple deployments
	// can share one Redis database. Keys() strips it from results.
	KeyPrefix string `json:"key_prefix"`
}

// RedisStore implements Store over a shared Redis instance using go-redis.
// Values are stored with the tolerant codec from serializer.go, so data
// written by other clients (plain strings, JSON) reads back naturally.
type RedisStore struct {
	rdb    *redis.Client
	config *RedisConfig
	logger logging.Logger

	subMu    sync.Mutex
	subs     map[string]*redisSubscription
	patterns map[string]*redisSubscription
}

// redisSubscription tracks one active SUBSCRIBE or PSUBSCRIBE and the
// handlers fanned out from its dispatch goroutine.
type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers []Handler
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(config *RedisConfig, logger logging.Logger) (*RedisStore, error) {
	if config == nil {
		return nil, apperrors.ConfigError("redis config is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.ConnectionError("failed to connect to Redis", err)
	}

	return &RedisStore{
		rdb:      rdb,
		config:   config,
		logger:   logger,
		subs:     make(map[string]*redisSubscription),
		patterns: make(map[string]*redisSubscription),
	}, nil
}

// GoRedisClient exposes the underlying go-redis client for integrations that
// need it directly, such as the redsync lock pool.
func (s *RedisStore) GoRedisClient() *redis.Client {
	return s.rdb
}

func (s *RedisStore) prefixed(key string) string {
	return s.config.KeyPrefix + key
}

// Key/value operations

func (s *RedisStore) Get(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ConnectionError("failed to get key", err)
	}
	return Decode(raw), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.prefixed(key), raw, ttl).Err(); err != nil {
		return apperrors.ConnectionError("failed to set key", err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	raw, err := Encode(value)
	if err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.rdb.SetNX(ctx, s.prefixed(key), raw, ttl).Result()
	if err != nil {
		return false, apperrors.ConnectionError("failed to setnx key", err)
	}
	return ok, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefixed(key)
	}
	deleted, err := s.rdb.Del(ctx, prefixed...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to delete keys", err)
	}
	return deleted, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.rdb.Exists(ctx, s.prefixed(key)).Result()
	if err != nil {
		return false, apperrors.ConnectionError("failed to check key existence", err)
	}
	return count > 0, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	value, err := s.rdb.Incr(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to increment key", err)
	}
	return value, nil
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	value, err := s.rdb.Decr(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to decrement key", err)
	}
	return value, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		deleted, err := s.Del(ctx, key)
		return deleted > 0, err
	}
	ok, err := s.rdb.Expire(ctx, s.prefixed(key), ttl).Result()
	if err != nil {
		return false, apperrors.ConnectionError("failed to set expiry", err)
	}
	return ok, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (int64, error) {
	d, err := s.rdb.TTL(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to read ttl", err)
	}
	// go-redis reports the sentinels as durations (-1ns/-2ns or -1s/-2s
	// depending on version); normalize both forms.
	switch {
	case d == -2 || d == -2*time.Second:
		return TTLKeyMissing, nil
	case d == -1 || d == -1*time.Second:
		return TTLNoExpiry, nil
	default:
		return int64(d / time.Second), nil
	}
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.rdb.Keys(ctx, s.prefixed(pattern)).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to list keys", err)
	}
	if s.config.KeyPrefix == "" {
		return keys, nil
	}
	stripped := make([]string, 0, len(keys))
	for _, key := range keys {
		stripped = append(stripped, strings.TrimPrefix(key, s.config.KeyPrefix))
	}
	return stripped, nil
}

func (s *RedisStore) FlushAll(ctx context.Context) error {
	if s.config.KeyPrefix == "" {
		if err := s.rdb.FlushDB(ctx).Err(); err != nil {
			return apperrors.ConnectionError("failed to flush database", err)
		}
		return nil
	}
	// With a prefix only our own keys are removed, not the whole database.
	keys, err := s.rdb.Keys(ctx, s.config.KeyPrefix+"*").Result()
	if err != nil {
		return apperrors.ConnectionError("failed to list keys for flush", err)
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return apperrors.ConnectionError("failed to flush prefixed keys", err)
		}
	}
	return nil
}

// Hash operations

func (s *RedisStore) HSet(ctx context.Context, key, field string, value interface{}) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.prefixed(key), field, raw).Err(); err != nil {
		return apperrors.ConnectionError("failed to set hash field", err)
	}
	return nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (interface{}, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.prefixed(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ConnectionError("failed to get hash field", err)
	}
	return Decode(raw), true, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]interface{}, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefixed(key)).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to get hash", err)
	}
	result := make(map[string]interface{}, len(raw))
	for field, value := range raw {
		result[field] = Decode(value)
	}
	return result, nil
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	deleted, err := s.rdb.HDel(ctx, s.prefixed(key), fields...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to delete hash fields", err)
	}
	return deleted, nil
}

func (s *RedisStore) HExists(ctx context.Context, key, field string) (bool, error) {
	ok, err := s.rdb.HExists(ctx, s.prefixed(key), field).Result()
	if err != nil {
		return false, apperrors.ConnectionError("failed to check hash field", err)
	}
	return ok, nil
}

func (s *RedisStore) HLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.HLen(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to get hash length", err)
	}
	return n, nil
}

// List operations

func (s *RedisStore) LPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	encoded, err := encodeAll(values)
	if err != nil {
		return 0, err
	}
	n, err := s.rdb.LPush(ctx, s.prefixed(key), encoded...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to lpush", err)
	}
	return n, nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	encoded, err := encodeAll(values)
	if err != nil {
		return 0, err
	}
	n, err := s.rdb.RPush(ctx, s.prefixed(key), encoded...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to rpush", err)
	}
	return n, nil
}

func encodeAll(values []interface{}) ([]interface{}, error) {
	encoded := make([]interface{}, len(values))
	for i, value := range values {
		raw, err := Encode(value)
		if err != nil {
			return nil, err
		}
		encoded[i] = raw
	}
	return encoded, nil
}

func (s *RedisStore) LPop(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := s.rdb.LPop(ctx, s.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ConnectionError("failed to lpop", err)
	}
	return Decode(raw), true, nil
}

func (s *RedisStore) RPop(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := s.rdb.RPop(ctx, s.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ConnectionError("failed to rpop", err)
	}
	return Decode(raw), true, nil
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]interface{}, error) {
	raw, err := s.rdb.LRange(ctx, s.prefixed(key), start, stop).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to lrange", err)
	}
	result := make([]interface{}, 0, len(raw))
	for _, item := range raw {
		result = append(result, Decode(item))
	}
	return result, nil
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to get list length", err)
	}
	return n, nil
}

// Set operations

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	added, err := s.rdb.SAdd(ctx, s.prefixed(key), args...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to sadd", err)
	}
	return added, nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	removed, err := s.rdb.SRem(ctx, s.prefixed(key), args...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to srem", err)
	}
	return removed, nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, s.prefixed(key)).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to get set members", err)
	}
	return members, nil
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.prefixed(key), member).Result()
	if err != nil {
		return false, apperrors.ConnectionError("failed to check set membership", err)
	}
	return ok, nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to get set cardinality", err)
	}
	return n, nil
}

// Sorted set operations

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	err := s.rdb.ZAdd(ctx, s.prefixed(key), &redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return apperrors.ConnectionError("failed to zadd", err)
	}
	return nil
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	removed, err := s.rdb.ZRem(ctx, s.prefixed(key), args...).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to zrem", err)
	}
	return removed, nil
}

func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.rdb.ZRange(ctx, s.prefixed(key), start, stop).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to zrange", err)
	}
	return members, nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.prefixed(key), &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, apperrors.ConnectionError("failed to zrangebyscore", err)
	}
	return members, nil
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	removed, err := s.rdb.ZRemRangeByScore(ctx, s.prefixed(key), min, max).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to zremrangebyscore", err)
	}
	return removed, nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to get sorted set cardinality", err)
	}
	return n, nil
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, s.prefixed(key), member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.ConnectionError("failed to get member score", err)
	}
	return score, true, nil
}

// Pub/sub operations
//
// Channels are not prefixed: pub/sub names a coordination channel shared
// across processes, not a stored key.

func (s *RedisStore) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	raw, err := Encode(message)
	if err != nil {
		return 0, err
	}
	receivers, err := s.rdb.Publish(ctx, channel, raw).Result()
	if err != nil {
		return 0, apperrors.ConnectionError("failed to publish message", err)
	}
	return receivers, nil
}

func (s *RedisStore) Subscribe(_ context.Context, channel string, handler Handler) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if sub, ok := s.subs[channel]; ok {
		sub.addHandler(handler)
		return nil
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.rdb.Subscribe(dispatchCtx, channel)
	if err := awaitSubscription(pubsub); err != nil {
		cancel()
		_ = pubsub.Close()
		return apperrors.ConnectionError("failed to subscribe", err)
	}
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, handlers: []Handler{handler}}
	s.subs[channel] = sub
	go s.dispatch(sub)
	return nil
}

// awaitSubscription blocks until the server confirms the subscription, so a
// publish issued right after Subscribe returns is guaranteed to be seen.
func awaitSubscription(pubsub *redis.PubSub) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := pubsub.Receive(ctx)
	return err
}

func (s *RedisStore) Unsubscribe(_ context.Context, channel string) error {
	s.subMu.Lock()
	sub, ok := s.subs[channel]
	delete(s.subs, channel)
	s.subMu.Unlock()

	if !ok {
		return nil
	}
	sub.close()
	return nil
}

func (s *RedisStore) PSubscribe(_ context.Context, pattern string, handler Handler) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if sub, ok := s.patterns[pattern]; ok {
		sub.addHandler(handler)
		return nil
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.rdb.PSubscribe(dispatchCtx, pattern)
	if err := awaitSubscription(pubsub); err != nil {
		cancel()
		_ = pubsub.Close()
		return apperrors.ConnectionError("failed to psubscribe", err)
	}
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, handlers: []Handler{handler}}
	s.patterns[pattern] = sub
	go s.dispatch(sub)
	return nil
}

func (s *RedisStore) PUnsubscribe(_ context.Context, pattern string) error {
	s.subMu.Lock()
	sub, ok := s.patterns[pattern]
	delete(s.patterns, pattern)
	s.subMu.Unlock()

	if !ok {
		return nil
	}
	sub.close()
	return nil
}

// dispatch pumps messages from one subscription to its handlers until the
// subscription closes. Handler panics are recovered so one bad handler
// cannot kill the pump.
func (s *RedisStore) dispatch(sub *redisSubscription) {
	for msg := range sub.pubsub.Channel() {
		payload := Decode(msg.Payload)
		for _, handler := range sub.snapshot() {
			s.invoke(msg.Channel, payload, handler)
		}
	}
}

func (s *RedisStore) invoke(channel string, payload interface{}, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pubsub handler panicked", apperrors.InternalError("handler panic", nil),
				logging.String("channel", channel),
				logging.Any("panic", r),
			)
		}
	}()
	handler(channel, payload)
}

func (sub *redisSubscription) addHandler(handler Handler) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.handlers = append(sub.handlers, handler)
}

func (sub *redisSubscription) snapshot() []Handler {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	handlers := make([]Handler, len(sub.handlers))
	copy(handlers, sub.handlers)
	return handlers
}

func (sub *redisSubscription) close() {
	_ = sub.pubsub.Close()
	sub.cancel()
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.ConnectionError("redis ping failed", err)
	}
	return nil
}

// Close tears down all active subscriptions and the connection pool.
func (s *RedisStore) Close() error {
	s.subMu.Lock()
	for channel, sub := range s.subs {
		sub.close()
		delete(s.subs, channel)
	}
	for pattern, sub := range s.patterns {
		sub.close()
		delete(s.patterns, pattern)
	}
	s.subMu.Unlock()

	return s.rdb.Close()
}

// Ensure RedisStore implements the Store interface
var _ Store = (*RedisStore)(nil)
