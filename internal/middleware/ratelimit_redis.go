package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces a limit shared by every replica through Redis (GCRA).
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisRateLimiter returns a limiter backed by client. prefix namespaces the keys
// so several limits can share one Redis database.
func NewRedisRateLimiter(client redis.UniversalClient, config RateLimitConfig, prefix string) *RedisRateLimiter {
	burst := config.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  burst,
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Backend implements Limiter.
func (l *RedisRateLimiter) Backend() string { return "redis" }

// Allow implements Limiter.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("redis rate limit: %w", err)
	}
	return RateLimitResult{
		Allowed:    res.Allowed > 0,
		Limit:      l.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}
