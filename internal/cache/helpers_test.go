package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock injected into the store and client
// so expiry and rate limit windows can be tested without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newMemoryClient builds a memory-backed client on a fake clock.
func newMemoryClient(t *testing.T) (*Client, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore(nil)
	store.now = clock.Now
	client := NewClient(store, TypeMemory, nil)
	client.now = clock.Now
	t.Cleanup(func() { _ = client.Close() })
	return client, clock
}

// newRedisClient builds a redis-backed client against a miniredis server.
// The returned advance function moves both the client's clock and the
// server's expiry clock.
func newRedisClient(t *testing.T) (*Client, func(time.Duration)) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(&RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)

	clock := newFakeClock()
	client := NewClient(store, TypeRedis, nil)
	client.now = clock.Now
	t.Cleanup(func() { _ = client.Close() })

	advance := func(d time.Duration) {
		clock.Advance(d)
		mr.FastForward(d)
	}
	return client, advance
}
