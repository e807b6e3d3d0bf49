// Package ratelimit wraps redis_rate behind a small interface so the HTTP
// layer can be tested without a live Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter checks whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit is the rule applied to one key.
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerSecond builds a steady-state rate with the given burst headroom.
func PerSecond(qps, burst int) Limit {
	return Limit{Rate: qps, Period: time.Second, Burst: burst}
}

// Result reports the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// RedisLimiter implements Limiter on the shared Redis instance, so the
// limit holds across replicas of the service.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisLimiter builds a limiter on the given client.
func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{limiter: redis_rate.NewLimiter(rdb)}
}

// Allow consumes one token for key under limit.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
