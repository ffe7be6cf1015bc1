// Package cache provides the cache and coordination layer shared by the rest
// of the application: an expiring key/value store, typed collections (hash,
// list, set, sorted set), a publish/subscribe bus, rate limiting and
// distributed locks.
//
// Every primitive is exposed through the Store interface and behaves the same
// whether it is backed by the in-process memory backend or a shared Redis
// instance. Callers receive a single *Client constructed once at startup (see
// New) and never branch on the backend type.
//
// Example usage:
//
//	client, err := cache.New(cache.Config{Type: cache.TypeMemory}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Set(ctx, "session:abc", profile, 15*time.Minute)
//	value, found, err := client.Get(ctx, "session:abc")
package cache

import (
	"context"
	"time"
)

// TTL sentinel values returned by Store.TTL, mirroring the Redis convention.
const (
	// TTLNoExpiry indicates the key exists but has no expiry set.
	TTLNoExpiry int64 = -1
	// TTLKeyMissing indicates the key does not exist or has expired.
	TTLKeyMissing int64 = -2
)

// Handler receives messages delivered through the pub/sub bus. The payload is
// decoded with the same tolerant codec used for stored values: JSON payloads
// arrive as decoded values, anything else arrives as the raw string.
type Handler func(channel string, payload interface{})

// Store abstracts the cache primitives over a concrete backend. All
// operations are safe for concurrent use. Absent keys are never errors:
// getters return a found flag or an empty collection. Errors indicate backend
// failures (for the Redis backend, connectivity problems) and must not be
// interpreted as absence.
type Store interface {
	// Key/value operations. Set fully replaces any previous TTL; a zero or
	// negative ttl stores the value without expiry. SetNX writes only when
	// the key is absent and reports whether the write happened.
	Get(ctx context.Context, key string) (interface{}, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	FlushAll(ctx context.Context) error

	// Hash operations.
	HSet(ctx context.Context, key, field string, value interface{}) error
	HGet(ctx context.Context, key, field string) (interface{}, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]interface{}, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HLen(ctx context.Context, key string) (int64, error)

	// List operations. LRange follows the Redis convention: negative indices
	// count from the tail (-1 is the last element) and stop is inclusive.
	LPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	RPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	LPop(ctx context.Context, key string) (interface{}, bool, error)
	RPop(ctx context.Context, key string) (interface{}, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]interface{}, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Sorted set operations. Iteration is ascending by score. Score bounds for
	// the *ByScore operations use the Redis syntax: a float, "-inf", "+inf",
	// or a "(" prefix for an exclusive bound; plain bounds are inclusive.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	// Pub/sub operations. Publish reports how many handlers received the
	// message. Subscriptions stay active until the matching Unsubscribe or
	// until Close.
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Unsubscribe(ctx context.Context, channel string) error
	PSubscribe(ctx context.Context, pattern string, handler Handler) error
	PUnsubscribe(ctx context.Context, pattern string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources, including active subscriptions.
	Close() error
}
