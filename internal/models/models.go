package models

import "time"

// Permission names carried on a tenant record.
const (
	PermSynthesize = "synthesize"
	PermVoices     = "voices"
	PermUpload     = "upload"
	PermAdmin      = "admin"
)

type Tenant struct {
	ID                 string    `json:"tenant_id"`
	Name               string    `json:"name"`
	Active             bool      `json:"is_active"`
	Permissions        []string  `json:"permissions"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	RateLimitPerHour   int       `json:"rate_limit_per_hour"`
	MaxVoices          int       `json:"max_voices"`
	CreatedAt          time.Time `json:"created_at"`
}

func (t *Tenant) HasPermission(perm string) bool {
	for _, p := range t.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type VoiceProfile struct {
	VoiceID            string    `json:"voice_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Language           string    `json:"language"`
	ReferenceAudioPath string    `json:"-"`
	IsCustom           bool      `json:"is_custom"`
	CreatedAt          time.Time `json:"created_at"`
}

// VoiceConfig is the resolved synthesis configuration for one voice.
// Preloaded voices resolve for every tenant; custom voices resolve only
// inside the owning tenant's namespace.
type VoiceConfig struct {
	VoiceID            string
	Language           string
	ReferenceAudioPath string
	EngineVoice        string
	Preloaded          bool
}

type VoiceStats struct {
	TenantID        string `json:"tenant_id"`
	CustomVoices    int    `json:"custom_voices"`
	PreloadedVoices int    `json:"preloaded_voices"`
	TotalVoices     int    `json:"total_voices"`
}

// RateLimitResult is the outcome of one admission check.
type RateLimitResult struct {
	Allowed bool  `json:"allowed"`
	Limit   int   `json:"limit"`
	Current int   `json:"current"`
	ResetAt int64 `json:"reset_at"`
}

type UsageLog struct {
	TenantID   string    `json:"tenant_id"`
	Endpoint   string    `json:"endpoint"`
	VoiceID    string    `json:"voice_id"`
	Language   string    `json:"language"`
	InputChars int       `json:"input_chars"`
	AudioBytes int64     `json:"audio_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Streaming  bool      `json:"streaming"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type UsageSummary struct {
	TenantID      string `json:"tenant_id"`
	TotalRequests int64  `json:"total_requests"`
	TotalChars    int64  `json:"total_chars"`
	TotalBytes    int64  `json:"total_audio_bytes"`
	ErrorCount    int64  `json:"error_count"`
}
