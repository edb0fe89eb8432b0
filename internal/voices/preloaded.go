package voices

import "github.com/callwaiting/tts-service/internal/models"

type preloadedVoice struct {
	Name        string
	Description string
	Language    string
	EngineVoice string
}

// Preloaded voices are visible to every tenant and never count against a
// tenant's custom-voice quota.
var preloadedVoices = map[string]preloadedVoice{
	"default": {
		Name:        "Default Voice",
		Description: "Default neural voice",
		Language:    "en",
		EngineVoice: "en-US-AriaNeural",
	},
	"naija_female": {
		Name:        "Nigerian Female",
		Description: "High-quality Nigerian female voice",
		Language:    "en",
		EngineVoice: "en-NG-EzinneNeural",
	},
	"naija_male": {
		Name:        "Nigerian Male",
		Description: "High-quality Nigerian male voice",
		Language:    "en",
		EngineVoice: "en-NG-AbeoNeural",
	},
}

func preloadedConfig(voiceID string) (*models.VoiceConfig, bool) {
	voice, ok := preloadedVoices[voiceID]
	if !ok {
		return nil, false
	}
	return &models.VoiceConfig{
		VoiceID:     voiceID,
		Language:    voice.Language,
		EngineVoice: voice.EngineVoice,
		Preloaded:   true,
	}, true
}

func preloadedProfiles() []models.VoiceProfile {
	profiles := make([]models.VoiceProfile, 0, len(preloadedVoices))
	for voiceID, voice := range preloadedVoices {
		profiles = append(profiles, models.VoiceProfile{
			VoiceID:     voiceID,
			Name:        voice.Name,
			Description: voice.Description,
			Language:    voice.Language,
			IsCustom:    false,
		})
	}
	return profiles
}
