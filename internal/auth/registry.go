package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/db"
	"github.com/callwaiting/tts-service/internal/models"
)

// Registry resolves a raw API key to a tenant record. Unknown, malformed
// and inactive keys are all reported as Unauthenticated so callers cannot
// distinguish a disabled tenant from a nonexistent one.
type Registry interface {
	Resolve(ctx context.Context, apiKey string) (*models.Tenant, error)
}

// HashAPIKey returns the sha256 hex digest stored in place of raw keys.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// PostgresRegistry resolves keys against the tenants table by hash.
type PostgresRegistry struct {
	db *db.DB
}

func NewPostgresRegistry(database *db.DB) *PostgresRegistry {
	return &PostgresRegistry{db: database}
}

func (r *PostgresRegistry) Resolve(ctx context.Context, apiKey string) (*models.Tenant, error) {
	tenant, err := r.db.GetTenantByKeyHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.E(apierr.Unauthenticated, "Invalid or inactive API key")
		}
		return nil, apierr.Wrap(apierr.Internal, err, "tenant lookup failed")
	}
	return tenant, nil
}

// MemoryRegistry holds literal keys in memory. It backs bootstrap and demo
// deployments that run without a database, and serves as the fallback when
// the hashed-key backend cannot resolve a key.
type MemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant // raw key -> tenant
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tenants: make(map[string]*models.Tenant)}
}

func (r *MemoryRegistry) Add(apiKey string, tenant *models.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[apiKey] = tenant
}

func (r *MemoryRegistry) Resolve(_ context.Context, apiKey string) (*models.Tenant, error) {
	r.mu.RLock()
	tenant, ok := r.tenants[apiKey]
	r.mu.RUnlock()

	if !ok || !tenant.Active {
		return nil, apierr.E(apierr.Unauthenticated, "Invalid or inactive API key")
	}
	return tenant, nil
}

// ChainRegistry consults backends in order. A backend failure or miss falls
// through to the next; only the final miss surfaces to the caller.
type ChainRegistry struct {
	backends []Registry
	log      *zap.SugaredLogger
}

func NewChainRegistry(log *zap.SugaredLogger, backends ...Registry) *ChainRegistry {
	return &ChainRegistry{backends: backends, log: log}
}

func (r *ChainRegistry) Resolve(ctx context.Context, apiKey string) (*models.Tenant, error) {
	for i, backend := range r.backends {
		tenant, err := backend.Resolve(ctx, apiKey)
		if err == nil {
			return tenant, nil
		}
		if apierr.KindOf(err) == apierr.Internal && r.log != nil {
			r.log.Warnw("registry backend unavailable, trying fallback", "backend", i, "error", err)
		}
	}
	return nil, apierr.E(apierr.Unauthenticated, "Invalid or inactive API key")
}
