package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_KeyValue(t *testing.T) {
	ctx := context.Background()
	client, clock := newMemoryClient(t)

	t.Run("get absent key", func(t *testing.T) {
		value, found, err := client.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("set and get round trip", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "profile", map[string]interface{}{"name": "acme"}, 0))

		value, found, err := client.Get(ctx, "profile")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, map[string]interface{}{"name": "acme"}, value)
	})

	t.Run("expired key is absent", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "session", "token", 10*time.Second))

		clock.Advance(11 * time.Second)

		_, found, err := client.Get(ctx, "session")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set overwrites previous ttl", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cfg", "v1", 5*time.Second))
		require.NoError(t, client.Set(ctx, "cfg", "v2", 0))

		clock.Advance(time.Minute)

		value, found, err := client.Get(ctx, "cfg")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v2", value)
	})

	t.Run("setnx only writes when absent", func(t *testing.T) {
		ok, err := client.SetNX(ctx, "once", "first", 0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.SetNX(ctx, "once", "second", 0)
		require.NoError(t, err)
		assert.False(t, ok)

		value, _, err := client.Get(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, "first", value)
	})

	t.Run("del removes key from every namespace", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "multi", "flat", 0))
		require.NoError(t, client.HSet(ctx, "multi", "field", "hash"))
		_, err := client.SAdd(ctx, "multi", "member")
		require.NoError(t, err)

		deleted, err := client.Del(ctx, "multi")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		exists, err := client.Exists(ctx, "multi")
		require.NoError(t, err)
		assert.False(t, exists)

		fields, err := client.HGetAll(ctx, "multi")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("incr treats absent as zero", func(t *testing.T) {
		n, err := client.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = client.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = client.Decr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("incr rejects non-integer values", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "text", "hello world", 0))

		_, err := client.Incr(ctx, "text")
		assert.Error(t, err)
	})

	t.Run("ttl sentinels", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "no-expiry", "v", 0))
		require.NoError(t, client.Set(ctx, "expiring", "v", 30*time.Second))

		ttl, err := client.TTL(ctx, "no-expiry")
		require.NoError(t, err)
		assert.Equal(t, TTLNoExpiry, ttl)

		ttl, err = client.TTL(ctx, "expiring")
		require.NoError(t, err)
		assert.Equal(t, int64(30), ttl)

		ttl, err = client.TTL(ctx, "never-set")
		require.NoError(t, err)
		assert.Equal(t, TTLKeyMissing, ttl)
	})

	t.Run("expire on live key", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "to-expire", "v", 0))

		ok, err := client.Expire(ctx, "to-expire", 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		clock.Advance(6 * time.Second)
		_, found, err := client.Get(ctx, "to-expire")
		require.NoError(t, err)
		assert.False(t, found)

		ok, err = client.Expire(ctx, "to-expire", 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_Keys(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	require.NoError(t, client.Set(ctx, "tenant:1:profile", "a", 0))
	require.NoError(t, client.Set(ctx, "tenant:2:profile", "b", 0))
	require.NoError(t, client.HSet(ctx, "tenant:1:settings", "theme", "dark"))
	require.NoError(t, client.Set(ctx, "other", "c", 0))

	keys, err := client.Keys(ctx, "tenant:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant:1:profile", "tenant:2:profile", "tenant:1:settings"}, keys)

	keys, err = client.Keys(ctx, "tenant:?:profile")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant:1:profile", "tenant:2:profile"}, keys)
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := client.Incr(ctx, "hits")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := client.Incr(ctx, "hits")
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), final)
}

func TestMemoryStore_Hash(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	require.NoError(t, client.HSet(ctx, "user:1", "name", "ada"))
	require.NoError(t, client.HSet(ctx, "user:1", "plan", map[string]interface{}{"tier": "pro"}))

	value, found, err := client.HGet(ctx, "user:1", "name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", value)

	_, found, err = client.HGet(ctx, "user:1", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	all, err := client.HGetAll(ctx, "user:1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, map[string]interface{}{"tier": "pro"}, all["plan"])

	exists, err := client.HExists(ctx, "user:1", "plan")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := client.HLen(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := client.HDel(ctx, "user:1", "plan", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err = client.HLen(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	t.Run("push and pop both ends", func(t *testing.T) {
		n, err := client.RPush(ctx, "queue", "a", "b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = client.LPush(ctx, "queue", "front")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		value, found, err := client.LPop(ctx, "queue")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "front", value)

		value, found, err = client.RPop(ctx, "queue")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "b", value)
	})

	t.Run("push with no values leaves key absent", func(t *testing.T) {
		store := NewMemoryStore(nil)
		defer store.Close()

		n, err := store.LPush(ctx, "untouched")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		store.mu.Lock()
		_, exists := store.lists["untouched"]
		store.mu.Unlock()
		assert.False(t, exists)
	})

	t.Run("pop on empty list", func(t *testing.T) {
		_, found, err := client.LPop(ctx, "nothing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("popping the last element removes the key", func(t *testing.T) {
		_, err := client.RPush(ctx, "single", "only")
		require.NoError(t, err)

		_, found, err := client.LPop(ctx, "single")
		require.NoError(t, err)
		assert.True(t, found)

		exists, err := client.Exists(ctx, "single")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("lrange negative indices", func(t *testing.T) {
		_, err := client.RPush(ctx, "letters", "a", "b", "c")
		require.NoError(t, err)

		items, err := client.LRange(ctx, "letters", -2, -1)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"b", "c"}, items)

		items, err = client.LRange(ctx, "letters", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"a", "b", "c"}, items)

		items, err = client.LRange(ctx, "letters", 5, 10)
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = client.LRange(ctx, "letters", 2, 1)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestMemoryStore_Set(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	added, err := client.SAdd(ctx, "tags", "go", "redis", "go")
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	ok, err := client.SIsMember(ctx, "tags", "go")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SIsMember(ctx, "tags", "python")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := client.SMembers(ctx, "tags")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "redis"}, members)

	n, err := client.SCard(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	removed, err := client.SRem(ctx, "tags", "go", "python")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err = client.SCard(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_SortedSet(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	t.Run("ascending score order", func(t *testing.T) {
		require.NoError(t, client.ZAdd(ctx, "board", 3, "carol"))
		require.NoError(t, client.ZAdd(ctx, "board", 1, "alice"))
		require.NoError(t, client.ZAdd(ctx, "board", 2, "bob"))

		members, err := client.ZRange(ctx, "board", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol"}, members)
	})

	t.Run("equal scores keep insertion order", func(t *testing.T) {
		require.NoError(t, client.ZAdd(ctx, "ties", 1, "first"))
		require.NoError(t, client.ZAdd(ctx, "ties", 1, "second"))
		require.NoError(t, client.ZAdd(ctx, "ties", 1, "third"))

		members, err := client.ZRange(ctx, "ties", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, members)

		// Re-scoring an existing member keeps its insertion position.
		require.NoError(t, client.ZAdd(ctx, "ties", 1, "first"))
		members, err = client.ZRange(ctx, "ties", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, members)
	})

	t.Run("range by score with bounds", func(t *testing.T) {
		require.NoError(t, client.ZAdd(ctx, "scores", 10, "ten"))
		require.NoError(t, client.ZAdd(ctx, "scores", 20, "twenty"))
		require.NoError(t, client.ZAdd(ctx, "scores", 30, "thirty"))

		members, err := client.ZRangeByScore(ctx, "scores", "10", "20")
		require.NoError(t, err)
		assert.Equal(t, []string{"ten", "twenty"}, members)

		members, err = client.ZRangeByScore(ctx, "scores", "(10", "+inf")
		require.NoError(t, err)
		assert.Equal(t, []string{"twenty", "thirty"}, members)

		members, err = client.ZRangeByScore(ctx, "scores", "-inf", "(30")
		require.NoError(t, err)
		assert.Equal(t, []string{"ten", "twenty"}, members)
	})

	t.Run("remove range by score", func(t *testing.T) {
		require.NoError(t, client.ZAdd(ctx, "prune", 1, "old"))
		require.NoError(t, client.ZAdd(ctx, "prune", 2, "older"))
		require.NoError(t, client.ZAdd(ctx, "prune", 9, "fresh"))

		removed, err := client.ZRemRangeByScore(ctx, "prune", "-inf", "(5")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		n, err := client.ZCard(ctx, "prune")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("zscore and zrem", func(t *testing.T) {
		require.NoError(t, client.ZAdd(ctx, "zs", 4.5, "member"))

		score, found, err := client.ZScore(ctx, "zs", "member")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 4.5, score)

		_, found, err = client.ZScore(ctx, "zs", "ghost")
		require.NoError(t, err)
		assert.False(t, found)

		removed, err := client.ZRem(ctx, "zs", "member", "ghost")
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("invalid score bound", func(t *testing.T) {
		_, err := client.ZRangeByScore(ctx, "scores", "abc", "10")
		assert.Error(t, err)
	})
}

func TestMemoryStore_PubSub(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	t.Run("direct subscription", func(t *testing.T) {
		var mu sync.Mutex
		var got []interface{}
		require.NoError(t, client.Subscribe(ctx, "orders", func(channel string, payload interface{}) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, payload)
		}))

		delivered, err := client.Publish(ctx, "orders", map[string]interface{}{"id": float64(1)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), delivered)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got, 1)
		assert.Equal(t, map[string]interface{}{"id": float64(1)}, got[0])
	})

	t.Run("pattern subscription matches channel names", func(t *testing.T) {
		var mu sync.Mutex
		var channels []string
		require.NoError(t, client.PSubscribe(ctx, "chat.*", func(channel string, payload interface{}) {
			mu.Lock()
			defer mu.Unlock()
			channels = append(channels, channel)
		}))

		_, err := client.Publish(ctx, "chat.123", "hello")
		require.NoError(t, err)
		_, err = client.Publish(ctx, "other.123", "ignored")
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"chat.123"}, channels)
	})

	t.Run("panicking handler does not block delivery", func(t *testing.T) {
		var delivered bool
		require.NoError(t, client.Subscribe(ctx, "alerts", func(channel string, payload interface{}) {
			panic("handler bug")
		}))
		require.NoError(t, client.Subscribe(ctx, "alerts", func(channel string, payload interface{}) {
			delivered = true
		}))

		count, err := client.Publish(ctx, "alerts", "boom")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.True(t, delivered)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		var calls int
		require.NoError(t, client.Subscribe(ctx, "temp", func(channel string, payload interface{}) {
			calls++
		}))
		require.NoError(t, client.Unsubscribe(ctx, "temp"))

		delivered, err := client.Publish(ctx, "temp", "x")
		require.NoError(t, err)
		assert.Equal(t, int64(0), delivered)
		assert.Equal(t, 0, calls)
	})
}

func TestMemoryStore_FlushAll(t *testing.T) {
	ctx := context.Background()
	client, _ := newMemoryClient(t)

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.HSet(ctx, "b", "f", "2"))
	require.NoError(t, client.FlushAll(ctx))

	keys, err := client.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
