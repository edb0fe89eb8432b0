package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/cache"
	"github.com/callwaiting/tts-service/internal/models"
)

type synthesizeRequest struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id"`
	Language  string `json:"language"`
	Streaming *bool  `json:"streaming"`
}

// parseSynthesizeRequest accepts JSON or form bodies. Streaming defaults
// to true when the engine supports it.
func (s *Server) parseSynthesizeRequest(r *http.Request) (synthesizeRequest, error) {
	var req synthesizeRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, apierr.E(apierr.InvalidArgument, "Invalid JSON body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, apierr.E(apierr.InvalidArgument, "Invalid form body")
		}
		req.Text = r.FormValue("text")
		req.VoiceID = r.FormValue("voice_id")
		req.Language = r.FormValue("language")
		if v := r.FormValue("streaming"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, apierr.E(apierr.InvalidArgument, "Invalid 'streaming' value")
			}
			req.Streaming = &b
		}
	}

	if req.VoiceID == "" {
		req.VoiceID = "default"
	}

	return req, nil
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenant, _ := auth.TenantFromContext(r.Context())

	req, err := s.parseSynthesizeRequest(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	voice, err := s.voices.GetConfig(r.Context(), tenant.ID, req.VoiceID)
	if err != nil {
		apierr.Write(w, err)
		s.recordUsage(tenant, "/v1/synthesize", req, 0, start, err)
		return
	}
	if req.Language != "" {
		voice.Language = req.Language
	}

	audio, err := s.dispatcher.Synthesize(r.Context(), req.Text, voice)
	if err != nil {
		apierr.Write(w, err)
		s.recordUsage(tenant, "/v1/synthesize", req, 0, start, err)
		return
	}
	defer audio.Close()

	streaming := s.dispatcher.Streaming()
	if req.Streaming != nil {
		streaming = *req.Streaming && s.dispatcher.Streaming()
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Tenant-ID", tenant.ID)
	w.Header().Set("X-Voice-ID", req.VoiceID)
	w.Header().Set("X-Streaming", strconv.FormatBool(streaming))

	if streaming {
		metrics, err := s.streamer.Stream(r.Context(), w, audio)
		if err != nil {
			// Headers are gone; all we can do is log and account for it.
			s.log.Warnw("stream aborted",
				"tenant_id", tenant.ID,
				"voice_id", req.VoiceID,
				"bytes_sent", metrics.Bytes,
				"error", err)
		}
		s.recordUsage(tenant, "/v1/synthesize", req, metrics.Bytes, start, err)
		return
	}

	data, err := io.ReadAll(audio)
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.SynthesisFailed, err, "Failed to read engine output"))
		s.recordUsage(tenant, "/v1/synthesize", req, 0, start, err)
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)

	s.recordUsage(tenant, "/v1/synthesize", req, int64(len(data)), start, nil)
}

func (s *Server) handleSynthesizeURL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenant, _ := auth.TenantFromContext(r.Context())

	req, err := s.parseSynthesizeRequest(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	text, err := s.dispatcher.Validate(req.Text)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	if s.cache != nil {
		if entry, found := s.cache.Get(r.Context(), tenant.ID, req.VoiceID, req.Language, text); found {
			writeJSON(w, http.StatusOK, map[string]any{
				"url":             entry.AudioURL,
				"file_id":         entry.FileID,
				"content_type":    entry.ContentType,
				"size_bytes":      entry.SizeBytes,
				"storage_backend": s.storage.BackendName(),
				"cached":          true,
			})
			s.recordUsage(tenant, "/v1/synthesize-url", req, int64(entry.SizeBytes), start, nil)
			return
		}
	}

	voice, err := s.voices.GetConfig(r.Context(), tenant.ID, req.VoiceID)
	if err != nil {
		apierr.Write(w, err)
		s.recordUsage(tenant, "/v1/synthesize-url", req, 0, start, err)
		return
	}
	if req.Language != "" {
		voice.Language = req.Language
	}

	audio, err := s.dispatcher.Synthesize(r.Context(), text, voice)
	if err != nil {
		apierr.Write(w, err)
		s.recordUsage(tenant, "/v1/synthesize-url", req, 0, start, err)
		return
	}
	data, err := io.ReadAll(audio)
	audio.Close()
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.SynthesisFailed, err, "Failed to read engine output"))
		s.recordUsage(tenant, "/v1/synthesize-url", req, 0, start, err)
		return
	}

	fileID := uuid.NewString() + ".wav"
	url, err := s.storage.SaveAudio(r.Context(), fileID, data, tenant.ID, "audio/wav")
	if err != nil {
		apierr.Write(w, err)
		s.recordUsage(tenant, "/v1/synthesize-url", req, 0, start, err)
		return
	}

	if s.cache != nil {
		s.cache.Store(r.Context(), tenant.ID, req.VoiceID, req.Language, text, cache.Entry{
			AudioURL:    url,
			FileID:      fileID,
			SizeBytes:   len(data),
			ContentType: "audio/wav",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":             url,
		"file_id":         fileID,
		"content_type":    "audio/wav",
		"size_bytes":      len(data),
		"storage_backend": s.storage.BackendName(),
		"cached":          false,
	})

	s.recordUsage(tenant, "/v1/synthesize-url", req, int64(len(data)), start, nil)
}

func (s *Server) recordUsage(tenant *models.Tenant, endpoint string, req synthesizeRequest, audioBytes int64, start time.Time, reqErr error) {
	entry := &models.UsageLog{
		TenantID:   tenant.ID,
		Endpoint:   endpoint,
		VoiceID:    req.VoiceID,
		Language:   req.Language,
		InputChars: len(req.Text),
		AudioBytes: audioBytes,
		LatencyMs:  time.Since(start).Milliseconds(),
		Streaming:  req.Streaming == nil || *req.Streaming,
	}
	if reqErr != nil {
		entry.Error = reqErr.Error()
	}
	s.usage.Record(entry)
}
