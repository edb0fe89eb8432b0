// Package ratelimit implements fixed-window admission control keyed by
// (tenant, window). Windows are discrete buckets: index = now / duration.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callwaiting/tts-service/internal/models"
)

// Window selects which counter a check runs against.
type Window string

const (
	Minute Window = "minute"
	Hour   Window = "hour"
)

func (w Window) Duration() time.Duration {
	if w == Hour {
		return time.Hour
	}
	return time.Minute
}

// Limiter performs one atomic check-and-increment against a tenant window.
// When the window is already at its limit the counter is left unchanged and
// Allowed is false.
type Limiter interface {
	Check(ctx context.Context, tenantID string, window Window, limit int) (models.RateLimitResult, error)
}

// RedisLimiter stores counters in Redis with a TTL equal to the window
// duration. INCR is the atomicity primitive: each caller observes a unique
// post-increment count, so under N concurrent calls exactly min(N, limit)
// observe a count within the limit. Overshoots are decremented back.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(redisURL string) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &RedisLimiter{client: redis.NewClient(opt)}, nil
}

// NewRedisLimiterWithClient wraps an existing client, mainly for tests.
func NewRedisLimiterWithClient(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (rl *RedisLimiter) Check(ctx context.Context, tenantID string, window Window, limit int) (models.RateLimitResult, error) {
	dur := window.Duration()
	now := time.Now().Unix()
	index := now / int64(dur.Seconds())
	resetAt := (index + 1) * int64(dur.Seconds())

	key := fmt.Sprintf("ratelimit:tenant:%s:%s:%d", tenantID, window, index)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return models.RateLimitResult{}, err
	}

	if count == 1 {
		rl.client.Expire(ctx, key, dur)
	}

	if count > int64(limit) {
		rl.undoOvershoot(ctx, key)

		return models.RateLimitResult{
			Allowed: false,
			Limit:   limit,
			Current: limit,
			ResetAt: resetAt,
		}, nil
	}

	return models.RateLimitResult{
		Allowed: true,
		Limit:   limit,
		Current: int(count),
		ResetAt: resetAt,
	}, nil
}

// undoOvershoot rolls back our own increment so the stored count settles
// at the limit. If the window's TTL fired between the INCR and now, the
// DECR recreates the key at a negative value with no TTL; delete it rather
// than leak a stray counter.
func (rl *RedisLimiter) undoOvershoot(ctx context.Context, key string) {
	count, err := rl.client.Decr(ctx, key).Result()
	if err == nil && count < 0 {
		rl.client.Del(ctx, key)
	}
}

func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
