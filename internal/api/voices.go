package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/voices"
)

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())

	profiles, err := s.voices.List(r.Context(), tenant.ID)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenant.ID,
		"voices":      profiles,
		"total_count": len(profiles),
	})
}

func (s *Server) handleUploadVoice(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		apierr.Write(w, apierr.E(apierr.InvalidArgument,
			"Invalid upload: file exceeds %d byte limit or form is malformed", s.maxUploadBytes))
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		apierr.Write(w, apierr.E(apierr.InvalidArgument, "Missing 'audio_file' field"))
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "audio/") {
		apierr.Write(w, apierr.E(apierr.InvalidArgument, "File must be an audio file"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.InvalidArgument, err, "Failed to read uploaded file"))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ".wav")
	}
	voiceID := r.FormValue("voice_id")
	if voiceID == "" {
		voiceID = "voice_" + uuid.NewString()[:8]
	}
	language := r.FormValue("language")
	if language == "" {
		language = "en-US"
	}

	profile, err := s.voices.Create(r.Context(), tenant.ID, voices.CreateParams{
		VoiceID:        voiceID,
		Name:           name,
		Description:    r.FormValue("description"),
		Language:       language,
		ReferenceAudio: data,
		MaxVoices:      tenant.MaxVoices,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}

	s.log.Infow("voice created",
		"tenant_id", tenant.ID,
		"voice_id", profile.VoiceID,
		"audio_bytes", len(data))

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "created",
		"voice":  profile,
	})
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())
	voiceID := mux.Vars(r)["voiceID"]

	deleted, err := s.voices.Delete(r.Context(), tenant.ID, voiceID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if !deleted {
		apierr.Write(w, apierr.E(apierr.NotFound, "Voice '%s' not found", voiceID))
		return
	}

	s.log.Infow("voice deleted", "tenant_id", tenant.ID, "voice_id", voiceID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "deleted",
		"voice_id": voiceID,
	})
}
