package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"saaskit/internal/cache"
)

// checker is implemented by limiters that can report the full decision, not
// just an allow/deny. The middleware uses it to emit X-RateLimit headers.
type checker interface {
	Check(ctx context.Context, key string) (*cache.RateLimitResult, error)
}

// HTTPMiddleware rate limits requests keyed by keyFunc. Responses carry
// X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset headers when
// the limiter exposes them, and a denied request gets 429 with Retry-After.
// Requests with an empty key, and checks that fail against the backing
// store, are admitted.
func HTTPMiddleware(limiter Limiter, config Config, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if c, ok := limiter.(checker); ok {
				result, err := c.Check(r.Context(), key)
				if err != nil {
					// Fail open.
					next.ServeHTTP(w, r)
					return
				}

				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.Limit))
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", int(result.ResetIn.Seconds())))

				if !result.Allowed {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.ResetIn.Seconds())))
					http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
					return
				}

				next.ServeHTTP(w, r)
				return
			}

			if !limiter.TryAcquireForKey(key) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(config.Window.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKey keys the limit by client IP, preferring proxy-forwarded headers.
func IPKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

// UserKey keys the limit by authenticated user; unauthenticated requests are
// not limited by this key.
func UserKey(r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return ""
	}
	return "user:" + userID
}

// EndpointKey keys the limit by method and path, limiting each endpoint as a
// whole rather than per caller.
func EndpointKey(r *http.Request) string {
	return fmt.Sprintf("endpoint:%s:%s", r.Method, r.URL.Path)
}
