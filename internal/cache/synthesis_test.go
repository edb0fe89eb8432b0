package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/cache"
)

func setupCache(t *testing.T) (*cache.SynthesisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return cache.NewSynthesisCacheWithClient(client, time.Hour, zap.NewNop().Sugar()), mr
}

func TestSynthesisCacheStoreAndGet(t *testing.T) {
	sc, _ := setupCache(t)
	ctx := context.Background()

	entry := cache.Entry{
		AudioURL:    "http://localhost:8000/v1/audio/tenant-a/abc.wav",
		FileID:      "abc.wav",
		SizeBytes:   1024,
		ContentType: "audio/wav",
	}
	sc.Store(ctx, "tenant-a", "default", "en-US", "hello world", entry)

	got, found := sc.Get(ctx, "tenant-a", "default", "en-US", "hello world")
	assert.True(t, found)
	assert.Equal(t, entry, got)
}

func TestSynthesisCacheMissOnDifferentRequest(t *testing.T) {
	sc, _ := setupCache(t)
	ctx := context.Background()

	sc.Store(ctx, "tenant-a", "default", "en-US", "hello world", cache.Entry{FileID: "a.wav"})

	_, found := sc.Get(ctx, "tenant-a", "default", "en-US", "hello there")
	assert.False(t, found)

	_, found = sc.Get(ctx, "tenant-b", "default", "en-US", "hello world")
	assert.False(t, found)

	_, found = sc.Get(ctx, "tenant-a", "naija_female", "en-US", "hello world")
	assert.False(t, found)
}

func TestSynthesisCacheEntriesExpire(t *testing.T) {
	sc, mr := setupCache(t)
	ctx := context.Background()

	sc.Store(ctx, "tenant-a", "default", "en-US", "hello", cache.Entry{FileID: "a.wav"})

	mr.FastForward(2 * time.Hour)

	_, found := sc.Get(ctx, "tenant-a", "default", "en-US", "hello")
	assert.False(t, found)
}

func TestSynthesisCacheRedisFailureIsAMiss(t *testing.T) {
	sc, mr := setupCache(t)
	mr.Close()

	_, found := sc.Get(context.Background(), "tenant-a", "default", "en-US", "hello")
	assert.False(t, found)
}
