package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/callwaiting/tts-service/internal/models"
)

// MemoryLimiter is the in-process fallback used when no Redis is
// configured. The mutex makes the check-then-increment sequence atomic.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count     int
	expiresAt int64
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*windowCounter)}
}

func (ml *MemoryLimiter) Check(_ context.Context, tenantID string, window Window, limit int) (models.RateLimitResult, error) {
	dur := window.Duration()
	now := time.Now().Unix()
	index := now / int64(dur.Seconds())
	resetAt := (index + 1) * int64(dur.Seconds())

	key := fmt.Sprintf("%s:%s:%d", tenantID, window, index)

	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.pruneLocked(now)

	counter, ok := ml.counters[key]
	if !ok {
		counter = &windowCounter{expiresAt: resetAt}
		ml.counters[key] = counter
	}

	if counter.count >= limit {
		return models.RateLimitResult{
			Allowed: false,
			Limit:   limit,
			Current: counter.count,
			ResetAt: resetAt,
		}, nil
	}

	counter.count++

	return models.RateLimitResult{
		Allowed: true,
		Limit:   limit,
		Current: counter.count,
		ResetAt: resetAt,
	}, nil
}

// pruneLocked drops expired windows. Called under the mutex.
func (ml *MemoryLimiter) pruneLocked(now int64) {
	for key, counter := range ml.counters {
		if counter.expiresAt <= now {
			delete(ml.counters, key)
		}
	}
}
