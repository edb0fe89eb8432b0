package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SynthesisCache maps a (tenant, voice, language, text) request to a
// previously stored audio URL so repeated URL-mode synthesis requests skip
// the engine entirely. Entries are exact-match only; any change to the
// request text produces a new key.
type SynthesisCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

type Entry struct {
	AudioURL    string `json:"audio_url"`
	FileID      string `json:"file_id"`
	SizeBytes   int    `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

func NewSynthesisCache(redisURL string, ttl time.Duration, log *zap.SugaredLogger) (*SynthesisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return NewSynthesisCacheWithClient(redis.NewClient(opt), ttl, log), nil
}

func NewSynthesisCacheWithClient(client *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *SynthesisCache {
	return &SynthesisCache{redis: client, ttl: ttl, log: log}
}

func (sc *SynthesisCache) key(tenantID, voiceID, language, text string) string {
	hash := sha256.Sum256([]byte(tenantID + "|" + voiceID + "|" + language + "|" + text))
	return fmt.Sprintf("synthcache:tenant:%s:%x", tenantID, hash)
}

// Get returns the cached entry for the request, or found=false on a miss.
// Redis failures are treated as misses so the caller falls through to a
// fresh synthesis.
func (sc *SynthesisCache) Get(ctx context.Context, tenantID, voiceID, language, text string) (Entry, bool) {
	var entry Entry

	raw, err := sc.redis.Get(ctx, sc.key(tenantID, voiceID, language, text)).Result()
	if err != nil {
		if err != redis.Nil {
			sc.log.Warnw("synthesis cache lookup failed", "tenant_id", tenantID, "error", err)
		}
		return entry, false
	}

	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return entry, false
	}

	return entry, true
}

// Store records the result of a completed synthesis. Failures are logged
// and swallowed; caching is best-effort.
func (sc *SynthesisCache) Store(ctx context.Context, tenantID, voiceID, language, text string, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := sc.redis.Set(ctx, sc.key(tenantID, voiceID, language, text), raw, sc.ttl).Err(); err != nil {
		sc.log.Warnw("synthesis cache store failed", "tenant_id", tenantID, "error", err)
	}
}
