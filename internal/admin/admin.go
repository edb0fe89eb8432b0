// Package admin exposes tenant management endpoints backed by Postgres.
// The surface is gated by a static admin token and is intended for
// operator tooling, not tenant traffic.
package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/db"
	"github.com/callwaiting/tts-service/internal/models"
)

type Handler struct {
	db    *db.DB
	token string
	log   *zap.SugaredLogger
}

func NewHandler(database *db.DB, token string, log *zap.SugaredLogger) *Handler {
	return &Handler{db: database, token: token, log: log}
}

// RegisterRoutes mounts the admin surface. The surface stays unmounted
// entirely unless both an admin token and a database are configured; every
// handler here needs Postgres.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	if h.token == "" {
		h.log.Warnw("admin token not configured, admin endpoints disabled")
		return
	}
	if h.db == nil {
		h.log.Warnw("database not configured, admin endpoints disabled")
		return
	}

	r := router.PathPrefix("/admin").Subrouter()
	r.Use(h.requireToken)

	r.HandleFunc("/tenants", h.ListTenants).Methods(http.MethodGet)
	r.HandleFunc("/tenants", h.CreateTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}", h.GetTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}", h.DeleteTenant).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{id}/rotate-key", h.RotateAPIKey).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/analytics", h.GetAnalytics).Methods(http.MethodGet)
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			apierr.Write(w, apierr.E(apierr.Unauthenticated, "Invalid admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string   `json:"name"`
		Permissions        []string `json:"permissions"`
		RateLimitPerMinute int      `json:"rate_limit_per_minute"`
		RateLimitPerHour   int      `json:"rate_limit_per_hour"`
		MaxVoices          int      `json:"max_voices"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.E(apierr.InvalidArgument, "Invalid request body"))
		return
	}
	if req.Name == "" {
		apierr.Write(w, apierr.E(apierr.InvalidArgument, "Tenant name is required"))
		return
	}

	if len(req.Permissions) == 0 {
		req.Permissions = []string{models.PermSynthesize, models.PermVoices}
	}
	if req.RateLimitPerMinute <= 0 {
		req.RateLimitPerMinute = 100
	}
	if req.RateLimitPerHour <= 0 {
		req.RateLimitPerHour = 1000
	}
	if req.MaxVoices <= 0 {
		req.MaxVoices = 10
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to generate API key"))
		return
	}

	tenant := &models.Tenant{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Active:             true,
		Permissions:        req.Permissions,
		RateLimitPerMinute: req.RateLimitPerMinute,
		RateLimitPerHour:   req.RateLimitPerHour,
		MaxVoices:          req.MaxVoices,
	}

	if err := h.db.CreateTenant(r.Context(), tenant, auth.HashAPIKey(apiKey)); err != nil {
		h.log.Errorw("failed to create tenant", "name", req.Name, "error", err)
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to create tenant"))
		return
	}

	h.log.Infow("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)

	// The plaintext key is returned exactly once; only its hash is stored.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenant":  tenant,
		"api_key": apiKey,
	})
}

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.db.ListTenants(r.Context())
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to list tenants"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenants":     tenants,
		"total_count": len(tenants),
	})
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.db.GetTenantByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apierr.Write(w, apierr.E(apierr.NotFound, "Tenant not found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tenant)
}

func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.db.DeleteTenant(r.Context(), id); err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to delete tenant"))
		return
	}

	h.log.Infow("tenant deleted", "tenant_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	newKey, err := generateAPIKey()
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to generate API key"))
		return
	}

	if err := h.db.RotateAPIKey(r.Context(), id, auth.HashAPIKey(newKey)); err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to rotate API key"))
		return
	}

	h.log.Infow("api key rotated", "tenant_id", id)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"api_key": newKey,
		"status":  "rotated",
	})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.db.GetTenantUsage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apierr.Write(w, apierr.Wrap(apierr.Internal, err, "Failed to load usage analytics"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "cw_" + hex.EncodeToString(bytes), nil
}
