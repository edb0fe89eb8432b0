// Package api exposes the service over HTTP. Admission (authentication
// followed by rate limiting) happens once at the router boundary; handlers
// assume an admitted tenant in the request context.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/cache"
	"github.com/callwaiting/tts-service/internal/models"
	"github.com/callwaiting/tts-service/internal/ratelimit"
	"github.com/callwaiting/tts-service/internal/storage"
	"github.com/callwaiting/tts-service/internal/stream"
	"github.com/callwaiting/tts-service/internal/synth"
	"github.com/callwaiting/tts-service/internal/usage"
	"github.com/callwaiting/tts-service/internal/voices"
)

type Server struct {
	auth       *auth.Middleware
	limiter    ratelimit.Limiter
	voices     voices.Store
	dispatcher *synth.Dispatcher
	streamer   *stream.Streamer
	storage    *storage.Manager
	cache      *cache.SynthesisCache
	usage      *usage.Recorder
	log        *zap.SugaredLogger

	maxUploadBytes int64
}

type Options struct {
	Auth           *auth.Middleware
	Limiter        ratelimit.Limiter
	Voices         voices.Store
	Dispatcher     *synth.Dispatcher
	Streamer       *stream.Streamer
	Storage        *storage.Manager
	Cache          *cache.SynthesisCache // optional
	Usage          *usage.Recorder
	MaxUploadBytes int64
}

func NewServer(opts Options, log *zap.SugaredLogger) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	return &Server{
		auth:           opts.Auth,
		limiter:        opts.Limiter,
		voices:         opts.Voices,
		dispatcher:     opts.Dispatcher,
		streamer:       opts.Streamer,
		storage:        opts.Storage,
		cache:          opts.Cache,
		usage:          opts.Usage,
		log:            log,
		maxUploadBytes: maxUpload,
	}
}

// Routes builds the router. Health and audio retrieval sit outside the
// admission chain: health is public, and audio retrieval authorizes via a
// signed token or its own Bearer check.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/audio/{tenantID}/{fileID}", s.handleServeAudio).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.auth.Authenticate, s.admit)

	v1.HandleFunc("/voices", s.handleListVoices).Methods(http.MethodGet)
	v1.HandleFunc("/voices/upload",
		auth.RequirePermission(models.PermUpload, s.handleUploadVoice)).Methods(http.MethodPost)
	v1.HandleFunc("/voices/{voiceID}",
		auth.RequirePermission(models.PermUpload, s.handleDeleteVoice)).Methods(http.MethodDelete)
	v1.HandleFunc("/synthesize",
		auth.RequirePermission(models.PermSynthesize, s.handleSynthesize)).Methods(http.MethodPost)
	v1.HandleFunc("/synthesize-url",
		auth.RequirePermission(models.PermSynthesize, s.handleSynthesizeURL)).Methods(http.MethodPost)
	v1.HandleFunc("/tenant/stats", s.handleTenantStats).Methods(http.MethodGet)

	return r
}

// admit runs the rate-limit checks for an authenticated tenant. Both the
// per-minute and per-hour windows must admit the request; a rejected
// increment is rolled back by the limiter itself.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := auth.TenantFromContext(r.Context())
		if !ok {
			apierr.Write(w, apierr.E(apierr.Unauthenticated, "Missing tenant context"))
			return
		}

		checks := []struct {
			window ratelimit.Window
			limit  int
		}{
			{ratelimit.Minute, tenant.RateLimitPerMinute},
			{ratelimit.Hour, tenant.RateLimitPerHour},
		}

		for _, c := range checks {
			result, err := s.limiter.Check(r.Context(), tenant.ID, c.window, c.limit)
			if err != nil {
				s.log.Errorw("rate limit check failed", "tenant_id", tenant.ID, "error", err)
				apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Rate limit check failed"))
				return
			}
			if !result.Allowed {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Current", strconv.Itoa(result.Current))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
				apierr.Write(w, apierr.E(apierr.RateLimited,
					"Rate limit exceeded: %d requests per %s", result.Limit, c.window))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"model_loaded":        true,
		"engine":              s.dispatcher.EngineName(),
		"streaming_supported": s.dispatcher.Streaming(),
		"storage_backend":     s.storage.BackendName(),
		"timestamp":           float64(time.Now().UnixMilli()) / 1000.0,
	})
}

func (s *Server) handleTenantStats(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())

	stats, err := s.voices.Stats(r.Context(), tenant.ID)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	summary, err := s.usage.TenantUsage(r.Context(), tenant.ID)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenant.ID,
		"tenant_name": tenant.Name,
		"voices":      stats,
		"usage":       summary,
		"limits": map[string]int{
			"requests_per_minute": tenant.RateLimitPerMinute,
			"requests_per_hour":   tenant.RateLimitPerHour,
			"max_voices":          tenant.MaxVoices,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
