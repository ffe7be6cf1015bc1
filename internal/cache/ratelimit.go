package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"saaskit/internal/common/utils"
)

// Rate limit key prefixes. Callers pass a bare identifier (an IP, a user id,
// an API key); the limiter owns the key naming.
const (
	rateLimitKeyPrefix        = "ratelimit:"
	slidingRateLimitKeyPrefix = "ratelimit:sw:"
)

// RateLimitResult is the outcome of one rate limit check.
type RateLimitResult struct {
	// Allowed reports whether this request fits within the limit.
	Allowed bool
	// Remaining is how many further requests the current window admits.
	Remaining int
	// ResetIn is how long until the window resets (fixed) or until capacity
	// frees up (sliding).
	ResetIn time.Duration
}

// CheckRateLimit applies a fixed-window limit to the identifier: the first
// request after expiry starts a fresh window of the given length, and every
// request inside the window consumes one unit of the limit.
//
// The window boundary is coarse on purpose: a burst straddling the boundary
// can see up to 2x the limit because the counter resets to 1 on the first
// increment of the new window. Call sites that need accuracy at the boundary
// use CheckSlidingWindowRateLimit instead.
func (c *Client) CheckRateLimit(ctx context.Context, id string, limit int, window time.Duration) (*RateLimitResult, error) {
	key := rateLimitKeyPrefix + id

	count, err := c.Incr(ctx, key)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if _, err := c.Expire(ctx, key, window); err != nil {
			return nil, err
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetIn := window
	if ttl, err := c.TTL(ctx, key); err == nil && ttl > 0 {
		resetIn = time.Duration(ttl) * time.Second
	}

	return &RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// CheckSlidingWindowRateLimit applies a sliding-window limit to the
// identifier. Each allowed request records one timestamped entry in a sorted
// set; entries older than the window are pruned before counting, so the
// limit holds over any window-length interval, not just aligned buckets.
// A denied request records nothing.
func (c *Client) CheckSlidingWindowRateLimit(ctx context.Context, id string, limit int, window time.Duration) (*RateLimitResult, error) {
	key := slidingRateLimitKeyPrefix + id
	now := c.now()
	nowScore := unixScore(now)
	windowStart := nowScore - window.Seconds()

	// Drop entries that have slid out of the window. The "(" bound keeps
	// entries landing exactly on the window start.
	cutoff := "(" + formatScore(windowStart)
	if _, err := c.ZRemRangeByScore(ctx, key, "-inf", cutoff); err != nil {
		return nil, err
	}

	count, err := c.ZCard(ctx, key)
	if err != nil {
		return nil, err
	}

	if count >= int64(limit) {
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetIn:   c.slidingResetIn(ctx, key, window, now),
		}, nil
	}

	member := fmt.Sprintf("%d:%s", now.UnixNano(), utils.MustGenerateNonce())
	if err := c.ZAdd(ctx, key, nowScore, member); err != nil {
		return nil, err
	}
	if _, err := c.Expire(ctx, key, window); err != nil {
		return nil, err
	}

	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		ResetIn:   window,
	}, nil
}

// slidingResetIn estimates when the oldest in-window entry slides out and
// frees one unit of capacity. Falls back to the full window when the oldest
// entry cannot be read.
func (c *Client) slidingResetIn(ctx context.Context, key string, window time.Duration, now time.Time) time.Duration {
	oldest, err := c.ZRange(ctx, key, 0, 0)
	if err != nil || len(oldest) == 0 {
		return window
	}
	score, found, err := c.ZScore(ctx, key, oldest[0])
	if err != nil || !found {
		return window
	}
	resetIn := time.Duration((score+window.Seconds()-unixScore(now))*float64(time.Second)) + time.Millisecond
	if resetIn < 0 {
		return 0
	}
	if resetIn > window {
		return window
	}
	return resetIn
}

func unixScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
