package cache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"saaskit/internal/common/logging"
)

// MemoryStore is the in-process reference backend. It implements every Store
// primitive directly over in-memory maps and is the fallback when no shared
// Redis instance is configured. Contents do not survive a process restart.
//
// A single coarse mutex guards all namespaces; the hash, list, set and sorted
// set namespaces are independent of the flat key/value namespace but share
// the Del/Exists/Expire/TTL contract through one expiry table. Expired keys
// are evicted lazily on access and swept periodically in the background.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	zsets   map[string]*sortedSet
	expiry  map[string]time.Time

	bus    *memoryBus
	logger logging.Logger
	done   chan struct{}

	// now is replaceable in tests to simulate clock advancement.
	now func() time.Time
}

// sortedSet keeps one score per member. Iteration is ascending by score;
// members with equal scores keep their relative insertion order, and
// re-scoring an existing member does not reset its insertion position.
type sortedSet struct {
	scores map[string]float64
	order  map[string]uint64
	seq    uint64
}

func newSortedSet() *sortedSet {
	return &sortedSet{
		scores: make(map[string]float64),
		order:  make(map[string]uint64),
	}
}

func (z *sortedSet) add(member string, score float64) {
	if _, ok := z.scores[member]; !ok {
		z.seq++
		z.order[member] = z.seq
	}
	z.scores[member] = score
}

func (z *sortedSet) sorted() []string {
	members := make([]string, 0, len(z.scores))
	for member := range z.scores {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := z.scores[members[i]], z.scores[members[j]]
		if si != sj {
			return si < sj
		}
		return z.order[members[i]] < z.order[members[j]]
	})
	return members
}

const memorySweepInterval = 30 * time.Second

// NewMemoryStore creates a new in-process backend with periodic eviction.
func NewMemoryStore(logger logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &MemoryStore{
		entries: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]*sortedSet),
		expiry:  make(map[string]time.Time),
		bus:     newMemoryBus(logger),
		logger:  logger,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			for key, exp := range s.expiry {
				if s.now().After(exp) {
					s.removeKey(key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// removeKey deletes key from every namespace. Callers must hold mu.
func (s *MemoryStore) removeKey(key string) {
	delete(s.entries, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	delete(s.expiry, key)
}

// evictIfExpired lazily evicts key when its expiry has passed. Callers must
// hold mu.
func (s *MemoryStore) evictIfExpired(key string) {
	if exp, ok := s.expiry[key]; ok && s.now().After(exp) {
		s.removeKey(key)
	}
}

// dropExpiryIfGone clears a leftover expiry once a key's last namespace
// entry is removed, so a later reincarnation of the key does not inherit it.
// Callers must hold mu.
func (s *MemoryStore) dropExpiryIfGone(key string) {
	if !s.keyLive(key) {
		delete(s.expiry, key)
	}
}

// keyLive reports whether key exists in any namespace after lazy eviction.
// Callers must hold mu.
func (s *MemoryStore) keyLive(key string) bool {
	s.evictIfExpired(key)
	if _, ok := s.entries[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	if list, ok := s.lists[key]; ok && len(list) > 0 {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	return false
}

// setExpiry records an expiry for key; a non-positive ttl clears any expiry.
// Callers must hold mu.
func (s *MemoryStore) setExpiry(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
}

// Key/value operations

func (s *MemoryStore) Get(_ context.Context, key string) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	raw, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return Decode(raw), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = raw
	s.setExpiry(key, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	raw, err := Encode(value)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyLive(key) {
		return false, nil
	}
	s.entries[key] = raw
	s.setExpiry(key, ttl)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.keyLive(key) {
			s.removeKey(key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyLive(key), nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, 1)
}

func (s *MemoryStore) Decr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, -1)
}

func (s *MemoryStore) incrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	var current int64
	if raw, ok := s.entries[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at key %q is not an integer", key)
		}
		current = parsed
	}
	current += delta
	// An increment never touches the key's expiry.
	s.entries[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.keyLive(key) {
		return false, nil
	}
	if ttl <= 0 {
		s.removeKey(key)
		return true, nil
	}
	s.expiry[key] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.keyLive(key) {
		return TTLKeyMissing, nil
	}
	exp, ok := s.expiry[key]
	if !ok {
		return TTLNoExpiry, nil
	}
	return int64(math.Ceil(exp.Sub(s.now()).Seconds())), nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, exp := range s.expiry {
		if s.now().After(exp) {
			s.removeKey(key)
		}
	}

	seen := make(map[string]struct{})
	matched := []string{}
	collect := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if globMatch(pattern, key) {
			matched = append(matched, key)
		}
	}

	for key := range s.entries {
		collect(key)
	}
	for key := range s.hashes {
		collect(key)
	}
	for key, list := range s.lists {
		if len(list) > 0 {
			collect(key)
		}
	}
	for key := range s.sets {
		collect(key)
	}
	for key := range s.zsets {
		collect(key)
	}
	sort.Strings(matched)
	return matched, nil
}

func (s *MemoryStore) FlushAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]string)
	s.hashes = make(map[string]map[string]string)
	s.lists = make(map[string][]string)
	s.sets = make(map[string]map[string]struct{})
	s.zsets = make(map[string]*sortedSet)
	s.expiry = make(map[string]time.Time)
	return nil
}

// Hash operations

func (s *MemoryStore) HSet(_ context.Context, key, field string, value interface{}) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	hash[field] = raw
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	raw, ok := s.hashes[key][field]
	if !ok {
		return nil, false, nil
	}
	return Decode(raw), true, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	result := make(map[string]interface{}, len(s.hashes[key]))
	for field, raw := range s.hashes[key] {
		result[field] = Decode(raw)
	}
	return result, nil
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	hash, ok := s.hashes[key]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for _, field := range fields {
		if _, ok := hash[field]; ok {
			delete(hash, field)
			deleted++
		}
	}
	if len(hash) == 0 {
		delete(s.hashes, key)
		s.dropExpiryIfGone(key)
	}
	return deleted, nil
}

func (s *MemoryStore) HExists(_ context.Context, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	_, ok := s.hashes[key][field]
	return ok, nil
}

func (s *MemoryStore) HLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	return int64(len(s.hashes[key])), nil
}

// List operations

func (s *MemoryStore) LPush(_ context.Context, key string, values ...interface{}) (int64, error) {
	return s.push(key, values, true)
}

func (s *MemoryStore) RPush(_ context.Context, key string, values ...interface{}) (int64, error) {
	return s.push(key, values, false)
}

func (s *MemoryStore) push(key string, values []interface{}, front bool) (int64, error) {
	if len(values) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.evictIfExpired(key)
		return int64(len(s.lists[key])), nil
	}

	encoded := make([]string, len(values))
	for i, value := range values {
		raw, err := Encode(value)
		if err != nil {
			return 0, err
		}
		encoded[i] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	list := s.lists[key]
	for _, raw := range encoded {
		if front {
			list = append([]string{raw}, list...)
		} else {
			list = append(list, raw)
		}
	}
	s.lists[key] = list
	return int64(len(list)), nil
}

func (s *MemoryStore) LPop(_ context.Context, key string) (interface{}, bool, error) {
	return s.pop(key, true)
}

func (s *MemoryStore) RPop(_ context.Context, key string) (interface{}, bool, error) {
	return s.pop(key, false)
}

func (s *MemoryStore) pop(key string, front bool) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	list := s.lists[key]
	if len(list) == 0 {
		return nil, false, nil
	}
	var raw string
	if front {
		raw, list = list[0], list[1:]
	} else {
		raw, list = list[len(list)-1], list[:len(list)-1]
	}
	if len(list) == 0 {
		// Empty list behaves as an absent key.
		delete(s.lists, key)
		s.dropExpiryIfGone(key)
	} else {
		s.lists[key] = list
	}
	return Decode(raw), true, nil
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	list := s.lists[key]
	start, stop, ok := normalizeRange(start, stop, int64(len(list)))
	if !ok {
		return []interface{}{}, nil
	}
	result := make([]interface{}, 0, stop-start+1)
	for _, raw := range list[start : stop+1] {
		result = append(result, Decode(raw))
	}
	return result, nil
}

func (s *MemoryStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	return int64(len(s.lists[key])), nil
}

// normalizeRange maps Redis-style start/stop indices (negatives counting
// from the tail, stop inclusive) onto a slice of length n. The ok result is
// false when the range selects nothing.
func normalizeRange(start, stop, n int64) (int64, int64, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

// Set operations

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, member := range members {
		if _, ok := set[member]; !ok {
			set[member] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, member := range members {
		if _, ok := set[member]; ok {
			delete(set, member)
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
		s.dropExpiryIfGone(key)
	}
	return removed, nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	members := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	return int64(len(s.sets[key])), nil
}

// Sorted set operations

func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		zset = newSortedSet()
		s.zsets[key] = zset
	}
	zset.add(member, score)
	return nil
}

func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, member := range members {
		if _, ok := zset.scores[member]; ok {
			delete(zset.scores, member)
			delete(zset.order, member)
			removed++
		}
	}
	if len(zset.scores) == 0 {
		delete(s.zsets, key)
		s.dropExpiryIfGone(key)
	}
	return removed, nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return []string{}, nil
	}
	members := zset.sorted()
	start, stop, live := normalizeRange(start, stop, int64(len(members)))
	if !live {
		return []string{}, nil
	}
	return members[start : stop+1], nil
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key, min, max string) ([]string, error) {
	minBound, err := parseScoreBound(min)
	if err != nil {
		return nil, err
	}
	maxBound, err := parseScoreBound(max)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return []string{}, nil
	}
	result := []string{}
	for _, member := range zset.sorted() {
		if inScoreRange(zset.scores[member], minBound, maxBound) {
			result = append(result, member)
		}
	}
	return result, nil
}

func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key, min, max string) (int64, error) {
	minBound, err := parseScoreBound(min)
	if err != nil {
		return 0, err
	}
	maxBound, err := parseScoreBound(max)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for member, score := range zset.scores {
		if inScoreRange(score, minBound, maxBound) {
			delete(zset.scores, member)
			delete(zset.order, member)
			removed++
		}
	}
	if len(zset.scores) == 0 {
		delete(s.zsets, key)
		s.dropExpiryIfGone(key)
	}
	return removed, nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	return int64(len(zset.scores)), nil
}

func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIfExpired(key)
	zset, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := zset.scores[member]
	return score, ok, nil
}

// scoreBound is one end of a ZRangeByScore interval.
type scoreBound struct {
	value     float64
	exclusive bool
}

// parseScoreBound parses the Redis score-bound syntax: a float, "-inf",
// "+inf"/"inf", or any of those prefixed with "(" for an exclusive bound.
func parseScoreBound(bound string) (scoreBound, error) {
	b := scoreBound{}
	raw := bound
	if strings.HasPrefix(raw, "(") {
		b.exclusive = true
		raw = raw[1:]
	}
	switch strings.ToLower(raw) {
	case "-inf":
		b.value = math.Inf(-1)
		return b, nil
	case "+inf", "inf":
		b.value = math.Inf(1)
		return b, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return b, fmt.Errorf("invalid score bound %q", bound)
	}
	b.value = value
	return b, nil
}

func inScoreRange(score float64, min, max scoreBound) bool {
	if min.exclusive {
		if score <= min.value {
			return false
		}
	} else if score < min.value {
		return false
	}
	if max.exclusive {
		if score >= max.value {
			return false
		}
	} else if score > max.value {
		return false
	}
	return true
}

// Pub/sub operations

func (s *MemoryStore) Publish(_ context.Context, channel string, message interface{}) (int64, error) {
	raw, err := Encode(message)
	if err != nil {
		return 0, err
	}
	return s.bus.publish(channel, Decode(raw)), nil
}

func (s *MemoryStore) Subscribe(_ context.Context, channel string, handler Handler) error {
	s.bus.subscribe(channel, handler)
	return nil
}

func (s *MemoryStore) Unsubscribe(_ context.Context, channel string) error {
	s.bus.unsubscribe(channel)
	return nil
}

func (s *MemoryStore) PSubscribe(_ context.Context, pattern string, handler Handler) error {
	s.bus.psubscribe(pattern, handler)
	return nil
}

func (s *MemoryStore) PUnsubscribe(_ context.Context, pattern string) error {
	s.bus.punsubscribe(pattern)
	return nil
}

// Ping reports the in-process backend as always reachable.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the background sweeper and drops all subscriptions. Stored
// data is discarded.
func (s *MemoryStore) Close() error {
	select {
	case <-s.done:
		// Already closed.
	default:
		close(s.done)
	}
	s.bus.clear()
	return s.FlushAll(context.Background())
}

// memoryBus is the in-process pub/sub fan-out. Handlers registered directly
// on a channel are invoked before pattern handlers. Each invocation is
// isolated: a panicking handler is recovered and logged without affecting
// the other handlers or the publish call.
type memoryBus struct {
	mu       sync.RWMutex
	channels map[string][]Handler
	patterns map[string][]Handler
	logger   logging.Logger
}

func newMemoryBus(logger logging.Logger) *memoryBus {
	return &memoryBus{
		channels: make(map[string][]Handler),
		patterns: make(map[string][]Handler),
		logger:   logger,
	}
}

func (b *memoryBus) subscribe(channel string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel] = append(b.channels[channel], handler)
}

func (b *memoryBus) unsubscribe(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, channel)
}

func (b *memoryBus) psubscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patterns[pattern] = append(b.patterns[pattern], handler)
}

func (b *memoryBus) punsubscribe(pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.patterns, pattern)
}

func (b *memoryBus) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = make(map[string][]Handler)
	b.patterns = make(map[string][]Handler)
}

func (b *memoryBus) publish(channel string, payload interface{}) int64 {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.channels[channel]))
	handlers = append(handlers, b.channels[channel]...)
	for pattern, patternHandlers := range b.patterns {
		if globMatch(pattern, channel) {
			handlers = append(handlers, patternHandlers...)
		}
	}
	b.mu.RUnlock()

	var delivered int64
	for _, handler := range handlers {
		if b.invoke(channel, payload, handler) {
			delivered++
		}
	}
	return delivered
}

func (b *memoryBus) invoke(channel string, payload interface{}, handler Handler) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error("pubsub handler panicked", fmt.Errorf("%v", r),
				logging.String("channel", channel),
			)
		}
	}()
	handler(channel, payload)
	return true
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
