// ratelimit.go provides per-client rate limiting for the API and the dashboard. A
// token bucket kept in memory serves single-instance deployments; RedisRateLimiter
// shares the budget across replicas.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/safego"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client.
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the API default of 60 requests per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for login and onboarding submissions.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// UploadRateLimitConfig returns limits for logo uploads.
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
	// Backend names the implementation for metrics ("memory", "redis").
	Backend() string
}

type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is an in-memory token bucket limiter.
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.RWMutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}
	safego.Go("ratelimit-cleanup", rl.cleanup)
	return rl
}

// cleanup periodically removes buckets idle for more than ten minutes.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// Backend implements Limiter.
func (rl *RateLimiter) Backend() string { return "memory" }

func (rl *RateLimiter) tokensPerSecond() float64 {
	return float64(rl.config.RequestsPerMinute) / 60.0
}

// Allow implements Limiter. It never fails.
func (rl *RateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	res := RateLimitResult{Limit: rl.config.RequestsPerMinute}
	entry, exists := rl.entries[key]
	if !exists {
		entry = &rateLimitEntry{tokens: float64(rl.config.BurstSize), lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate).Seconds()
		entry.tokens = math.Min(float64(rl.config.BurstSize), entry.tokens+elapsed*rl.tokensPerSecond())
		entry.lastUpdate = now
	}

	if entry.tokens >= 1 {
		entry.tokens--
		res.Allowed = true
		res.Remaining = int(entry.tokens)
		return res, nil
	}

	if rate := rl.tokensPerSecond(); rate > 0 {
		res.RetryAfter = time.Duration((1 - entry.tokens) / rate * float64(time.Second))
	} else {
		res.RetryAfter = time.Minute
	}
	return res, nil
}

// RemainingTokens returns how many tokens are left for a key
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, exists := rl.entries[key]
	if !exists {
		return rl.config.BurstSize
	}

	elapsed := time.Since(entry.lastUpdate).Seconds()
	return int(math.Min(float64(rl.config.BurstSize), entry.tokens+elapsed*rl.tokensPerSecond()))
}

// RateLimitMiddleware rejects requests over the limit with 429. Behind AuthMiddleware
// each user has their own bucket; elsewhere clients are keyed by IP. A limiter error
// lets the request through; losing the shared store must not take the API down.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request",
				"backend", limiter.Backend(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			abortRateLimited(c, limiter, res)
			return
		}

		c.Next()
	}
}

func abortRateLimited(c *gin.Context, limiter Limiter, res RateLimitResult) {
	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	telemetry.RateLimitRejectionsTotal.WithLabelValues(limiter.Backend()).Inc()
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Rate limit exceeded",
		"retry_after": retryAfter,
	})
}

// getRateLimitKey keys authenticated callers by user id and everyone else by IP.
func getRateLimitKey(c *gin.Context) string {
	if userID := c.GetString(UserIDKey); userID != "" {
		return "user:" + userID
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
