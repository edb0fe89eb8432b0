// Package voices manages per-tenant voice profiles: preloaded voices shared
// by every tenant plus custom voices created from uploaded reference audio.
package voices

import (
	"context"

	"github.com/callwaiting/tts-service/internal/models"
)

// CreateParams carries everything needed to create a custom voice.
type CreateParams struct {
	VoiceID        string
	Name           string
	Description    string
	Language       string
	ReferenceAudio []byte
	MaxVoices      int
}

// Store is the voice-profile repository. Custom voices are namespaced per
// tenant; preloaded voices resolve for everyone. Create and Delete are safe
// under concurrent callers for the same (tenant, voice) pair.
type Store interface {
	List(ctx context.Context, tenantID string) ([]models.VoiceProfile, error)
	GetConfig(ctx context.Context, tenantID, voiceID string) (*models.VoiceConfig, error)
	Create(ctx context.Context, tenantID string, params CreateParams) (*models.VoiceProfile, error)
	Delete(ctx context.Context, tenantID, voiceID string) (bool, error)
	Stats(ctx context.Context, tenantID string) (*models.VoiceStats, error)
}
