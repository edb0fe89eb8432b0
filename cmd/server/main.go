package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/callwaiting/tts-service/internal/admin"
	"github.com/callwaiting/tts-service/internal/api"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/cache"
	"github.com/callwaiting/tts-service/internal/config"
	"github.com/callwaiting/tts-service/internal/db"
	"github.com/callwaiting/tts-service/internal/engine"
	"github.com/callwaiting/tts-service/internal/logging"
	"github.com/callwaiting/tts-service/internal/models"
	"github.com/callwaiting/tts-service/internal/ratelimit"
	"github.com/callwaiting/tts-service/internal/storage"
	"github.com/callwaiting/tts-service/internal/stream"
	"github.com/callwaiting/tts-service/internal/synth"
	"github.com/callwaiting/tts-service/internal/usage"
	"github.com/callwaiting/tts-service/internal/voices"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Postgres is optional; without it the service runs on the in-memory
	// bootstrap registry and skips usage persistence.
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("failed to connect to database", "error", err)
		}
		defer database.Close()
	} else {
		logger.Warnw("DATABASE_URL not set, running with in-memory tenant registry only")
	}

	memory := auth.NewMemoryRegistry()
	bootstrapTenants(memory, cfg)

	var registry auth.Registry = memory
	if database != nil {
		registry = auth.NewChainRegistry(logger, auth.NewPostgresRegistry(database), memory)
	}

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			logger.Fatalw("failed to initialize rate limiter", "error", err)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		logger.Warnw("REDIS_URL not set, using in-process rate limiter")
		limiter = ratelimit.NewMemoryLimiter()
	}

	voiceStore, err := voices.NewSQLiteStore(cfg.VoicesDBPath, cfg.VoiceStorageDir, logger)
	if err != nil {
		logger.Fatalw("failed to open voice store", "path", cfg.VoicesDBPath, "error", err)
	}
	defer voiceStore.Close()

	var eng engine.Engine
	switch cfg.TTSEngine {
	case "edge":
		eng = engine.NewEdgeEngine(cfg.EngineVoice, logger)
	default:
		eng = engine.NewCommandEngine(cfg.EngineCommand, cfg.EngineVoice, logger)
	}

	dispatcher := synth.NewDispatcher(eng, synth.Options{
		Timeout:       cfg.EngineTimeout,
		MaxTextLength: cfg.MaxTextLength,
	}, logger)

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.ServerPort
	}

	secret := cfg.SignedURLSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warnw("SIGNED_URL_SECRET not set, signed URLs will not survive a restart")
	}
	signer := storage.NewURLSigner(secret, time.Duration(cfg.SignedURLExpirySeconds)*time.Second)

	store, err := storage.NewManager(storage.ManagerOptions{
		Backend:  cfg.StorageBackend,
		AudioDir: cfg.AudioStorageDir,
		BaseURL:  baseURL,
		NATSURL:  cfg.NATSURL,
		Bucket:   cfg.AudioBucket,
		Signer:   signer,
	}, logger)
	if err != nil {
		logger.Fatalw("failed to initialize storage", "error", err)
	}

	var synthCache *cache.SynthesisCache
	if cfg.RedisURL != "" {
		synthCache, err = cache.NewSynthesisCache(cfg.RedisURL, time.Hour, logger)
		if err != nil {
			logger.Fatalw("failed to initialize synthesis cache", "error", err)
		}
	}

	recorder := usage.NewRecorder(database, logger)
	defer recorder.Close()

	server := api.NewServer(api.Options{
		Auth:           auth.NewMiddleware(registry),
		Limiter:        limiter,
		Voices:         voiceStore,
		Dispatcher:     dispatcher,
		Streamer:       stream.New(cfg.ChunkSize, cfg.BufferCapacity, logger),
		Storage:        store,
		Cache:          synthCache,
		Usage:          recorder,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	router := server.Routes()
	admin.NewHandler(database, cfg.AdminToken, logger).RegisterRoutes(router)

	logger.Infow("server starting",
		"port", cfg.ServerPort,
		"engine", dispatcher.EngineName(),
		"streaming", dispatcher.Streaming(),
		"storage_backend", store.BackendName())

	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		logger.Fatalw("server failed", "error", err)
	}
}

// bootstrapTenants seeds the demo keys so the service is usable out of the
// box without Postgres.
func bootstrapTenants(registry *auth.MemoryRegistry, cfg *config.Config) {
	registry.Add("cw_demo_12345", &models.Tenant{
		ID:                 "callwaiting_demo",
		Name:               "CallWaiting Demo",
		Active:             true,
		Permissions:        []string{models.PermSynthesize, models.PermVoices, models.PermUpload},
		RateLimitPerMinute: cfg.DefaultRateLimitMinute,
		RateLimitPerHour:   cfg.DefaultRateLimitHour,
		MaxVoices:          cfg.DefaultMaxVoices,
		CreatedAt:          time.Now().UTC(),
	})
	registry.Add("test_key_67890", &models.Tenant{
		ID:                 "test_tenant",
		Name:               "Test Tenant",
		Active:             true,
		Permissions:        []string{models.PermSynthesize, models.PermVoices},
		RateLimitPerMinute: 10,
		RateLimitPerHour:   100,
		MaxVoices:          3,
		CreatedAt:          time.Now().UTC(),
	})
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
