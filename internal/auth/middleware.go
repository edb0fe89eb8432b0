package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/models"
)

type contextKey string

const TenantContextKey contextKey = "tenant"

type Middleware struct {
	registry Registry
}

func NewMiddleware(registry Registry) *Middleware {
	return &Middleware{registry: registry}
}

// Authenticate extracts the Bearer API key, resolves it to a tenant and
// stores the tenant in the request context. The key is case-sensitive and
// only the "Bearer " prefix is stripped.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			apierr.Write(w, apierr.E(apierr.Unauthenticated, "Missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			apierr.Write(w, apierr.E(apierr.Unauthenticated, "Invalid authorization header format"))
			return
		}

		tenant, err := m.registry.Resolve(r.Context(), parts[1])
		if err != nil {
			apierr.Write(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), TenantContextKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission gates a handler on a tenant permission. It must run
// inside Authenticate.
func RequirePermission(perm string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := TenantFromContext(r.Context())
		if !ok {
			apierr.Write(w, apierr.E(apierr.Unauthenticated, "Missing tenant context"))
			return
		}
		if !tenant.HasPermission(perm) {
			apierr.Write(w, apierr.E(apierr.Forbidden, "Permission '%s' required", perm))
			return
		}
		next(w, r)
	}
}

func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(TenantContextKey).(*models.Tenant)
	return tenant, ok
}
