package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows across instances through Redis.
// Counters live under "ratelimit:<principal>:<action>" with a TTL equal
// to the window.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context, principal string, action Action, limit Limit) (Result, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", principal, action)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, limit.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = limit.Window
	}
	resetAt := time.Now().Add(ttl)

	if count > int64(limit.Max) {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Result{
		Allowed:   true,
		Remaining: limit.Max - int(count),
		ResetAt:   resetAt,
	}, nil
}
