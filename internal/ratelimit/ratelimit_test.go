package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwaiting/tts-service/internal/ratelimit"
)

func setupRedisLimiter(t *testing.T) *ratelimit.RedisLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return ratelimit.NewRedisLimiterWithClient(client)
}

func TestRedisLimiterFirstRequestAllowed(t *testing.T) {
	limiter := setupRedisLimiter(t)

	result, err := limiter.Check(context.Background(), "tenant-a", ratelimit.Minute, 5)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Current)
	assert.Equal(t, 5, result.Limit)
}

func TestRedisLimiterRejectsOverLimit(t *testing.T) {
	limiter := setupRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 2)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 2)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 2, result.Limit)
	assert.Equal(t, 2, result.Current)
	assert.Greater(t, result.ResetAt, int64(0))
}

func TestRedisLimiterTenantsAreIndependent(t *testing.T) {
	limiter := setupRedisLimiter(t)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 1)
	require.NoError(t, err)

	result, err := limiter.Check(ctx, "tenant-b", ratelimit.Minute, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiterWindowsAreIndependent(t *testing.T) {
	limiter := setupRedisLimiter(t)
	ctx := context.Background()

	minute, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 1)
	require.NoError(t, err)
	assert.True(t, minute.Allowed)

	hour, err := limiter.Check(ctx, "tenant-a", ratelimit.Hour, 1)
	require.NoError(t, err)
	assert.True(t, hour.Allowed)

	minute, err = limiter.Check(ctx, "tenant-a", ratelimit.Minute, 1)
	require.NoError(t, err)
	assert.False(t, minute.Allowed)
}

// Concurrent callers against one tenant must see exactly min(N, limit)
// admissions and no post-increment count above the limit.
func TestRedisLimiterConcurrentAdmissions(t *testing.T) {
	limiter := setupRedisLimiter(t)
	ctx := context.Background()

	const callers = 50
	const limit = 10

	var allowed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()

			result, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, limit)
			if err != nil {
				return
			}
			if result.Allowed {
				allowed.Add(1)
				assert.LessOrEqual(t, result.Current, limit)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(limit), allowed.Load())
}

func TestMemoryLimiterBasicFlow(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 3)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, i, result.Current)
	}

	result, err := limiter.Check(ctx, "tenant-a", ratelimit.Minute, 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 3, result.Current)
}

func TestMemoryLimiterConcurrentAdmissions(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	const callers = 100
	const limit = 25

	var allowed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()

			result, err := limiter.Check(ctx, "tenant-a", ratelimit.Hour, limit)
			if err != nil {
				return
			}
			if result.Allowed {
				allowed.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(limit), allowed.Load())
}
