package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// Backing stores. Empty values select the in-process fallbacks.
	DatabaseURL  string
	RedisURL     string
	VoicesDBPath string

	// Storage.
	StorageBackend         string // "local" or "nats"
	AudioStorageDir        string
	VoiceStorageDir        string
	NATSURL                string
	AudioBucket            string
	PublicBaseURL          string
	SignedURLSecret        string
	SignedURLExpirySeconds int

	// Synthesis.
	TTSEngine     string // "edge" or "command"
	EngineVoice   string
	EngineCommand string
	EngineTimeout time.Duration
	MaxTextLength int

	// Streaming.
	ChunkSize      int
	BufferCapacity int

	// Tenant defaults, used when a registry row leaves them unset.
	DefaultRateLimitMinute int
	DefaultRateLimitHour   int
	DefaultMaxVoices       int
	MaxUploadBytes         int64

	AdminToken string
	LogLevel   string
	LogFile    string
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		VoicesDBPath: getEnv("VOICES_DB_PATH", "voices.db"),

		StorageBackend:         getEnv("STORAGE_BACKEND", "local"),
		AudioStorageDir:        getEnv("AUDIO_STORAGE_DIR", "/tmp/tts-audio"),
		VoiceStorageDir:        getEnv("VOICE_STORAGE_DIR", "./voice_storage"),
		NATSURL:                getEnv("NATS_URL", ""),
		AudioBucket:            getEnv("AUDIO_BUCKET", "tts-audio"),
		PublicBaseURL:          getEnv("PUBLIC_BASE_URL", ""),
		SignedURLSecret:        getEnv("SIGNED_URL_SECRET", ""),
		SignedURLExpirySeconds: getEnvInt("SIGNED_URL_EXPIRY_SECONDS", 3600),

		TTSEngine:     getEnv("TTS_ENGINE", "command"),
		EngineVoice:   getEnv("ENGINE_VOICE", "en-US-AriaNeural"),
		EngineCommand: getEnv("ENGINE_COMMAND", "espeak"),
		EngineTimeout: time.Duration(getEnvInt("ENGINE_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxTextLength: getEnvInt("MAX_TEXT_LENGTH", 5000),

		ChunkSize:      getEnvInt("CHUNK_SIZE", 1024),
		BufferCapacity: getEnvInt("BUFFER_CAPACITY", 8192),

		DefaultRateLimitMinute: getEnvInt("DEFAULT_RATE_LIMIT_MINUTE", 100),
		DefaultRateLimitHour:   getEnvInt("DEFAULT_RATE_LIMIT_HOUR", 1000),
		DefaultMaxVoices:       getEnvInt("DEFAULT_MAX_VOICES", 10),
		MaxUploadBytes:         int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		AdminToken: getEnv("ADMIN_TOKEN", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}
