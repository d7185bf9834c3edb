package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jgutierrezgil/guardiapass/internal/metrics"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
	Window() time.Duration
}

var rateLimitScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimiter provides fixed-window rate limiting using Redis.
type RateLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter(client *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: requests,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	// Use a Lua script for atomic increment and check
	result, err := rateLimitScript.Run(ctx, rl.client, []string{redisKey}, int(rl.window.Seconds())).Int()
	if err != nil {
		return false, 0, err
	}

	remaining := rl.requests - result
	if remaining < 0 {
		remaining = 0
	}

	return result <= rl.requests, remaining, nil
}

// Limit returns the number of requests allowed per window.
func (rl *RateLimiter) Limit() int { return rl.requests }

// Window returns the rate limit window.
func (rl *RateLimiter) Window() time.Duration { return rl.window }

// MemoryRateLimiter is an in-process token bucket per key. It is used
// when no Redis URL is configured.
type MemoryRateLimiter struct {
	requests int
	window   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

// NewMemoryRateLimiter creates a limiter that refills requests tokens per
// window with a burst of requests.
func NewMemoryRateLimiter(requests int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		requests: requests,
		window:   window,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

// Allow takes a token from key's bucket.
func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	m.mu.Lock()
	limiter, ok := m.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(m.window/time.Duration(m.requests)), m.requests)
		m.limiters[key] = limiter
	}
	m.lastSeen[key] = time.Now()
	m.mu.Unlock()

	allowed := limiter.Allow()
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, nil
}

// Limit returns the bucket size.
func (m *MemoryRateLimiter) Limit() int { return m.requests }

// Window returns the refill window.
func (m *MemoryRateLimiter) Window() time.Duration { return m.window }

// Cleanup drops buckets unused for longer than the window.
func (m *MemoryRateLimiter) Cleanup() {
	cutoff := time.Now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, seen := range m.lastSeen {
		if seen.Before(cutoff) {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}
}

// RateLimit returns middleware that rate limits requests.
func RateLimit(limiter Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			// If authenticated, use user ID instead
			if sess := GetSession(r.Context()); sess != nil {
				key = "user:" + sess.UserID.String()
			}

			allowed, remaining, err := limiter.Allow(r.Context(), key)
			if err != nil {
				// If Redis is down, fail closed and return 503
				slog.Error("rate limiter unavailable", "key", key, "error", err)
				metrics.RateLimitRejections.WithLabelValues("unavailable").Inc()
				jsonError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(limiter.Window()).Unix()))

			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(limiter.Window().Seconds())))
				metrics.RateLimitRejections.WithLabelValues("limited").Inc()
				jsonError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
