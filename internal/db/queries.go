package db

import (
	"context"

	"github.com/callwaiting/tts-service/internal/models"
)

// GetTenantByKeyHash looks up an active tenant by the sha256 hex digest of
// its API key. Raw keys are never stored.
func (db *DB) GetTenantByKeyHash(ctx context.Context, keyHash string) (*models.Tenant, error) {
	query := `
        SELECT id, name, is_active, permissions, rate_limit_minute, rate_limit_hour, max_voices, created_at
        FROM tenants
        WHERE api_key_hash = $1 AND is_active = true
    `

	var tenant models.Tenant
	err := db.Pool.QueryRow(ctx, query, keyHash).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Active,
		&tenant.Permissions,
		&tenant.RateLimitPerMinute,
		&tenant.RateLimitPerHour,
		&tenant.MaxVoices,
		&tenant.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	return &tenant, nil
}

func (db *DB) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `
        SELECT id, name, is_active, permissions, rate_limit_minute, rate_limit_hour, max_voices, created_at
        FROM tenants
        WHERE id = $1
    `

	var tenant models.Tenant
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Active,
		&tenant.Permissions,
		&tenant.RateLimitPerMinute,
		&tenant.RateLimitPerHour,
		&tenant.MaxVoices,
		&tenant.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	return &tenant, nil
}

func (db *DB) CreateTenant(ctx context.Context, tenant *models.Tenant, keyHash string) error {
	query := `
        INSERT INTO tenants (id, name, api_key_hash, is_active, permissions, rate_limit_minute, rate_limit_hour, max_voices)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at
    `

	return db.Pool.QueryRow(ctx, query,
		tenant.ID,
		tenant.Name,
		keyHash,
		tenant.Active,
		tenant.Permissions,
		tenant.RateLimitPerMinute,
		tenant.RateLimitPerHour,
		tenant.MaxVoices,
	).Scan(&tenant.CreatedAt)
}

func (db *DB) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	query := `
        SELECT id, name, is_active, permissions, rate_limit_minute, rate_limit_hour, max_voices, created_at
        FROM tenants
        ORDER BY created_at
    `

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		err := rows.Scan(
			&tenant.ID,
			&tenant.Name,
			&tenant.Active,
			&tenant.Permissions,
			&tenant.RateLimitPerMinute,
			&tenant.RateLimitPerHour,
			&tenant.MaxVoices,
			&tenant.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

func (db *DB) DeleteTenant(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return err
}

// RotateAPIKey replaces a tenant's key hash. The previous key stops
// resolving immediately.
func (db *DB) RotateAPIKey(ctx context.Context, id, newKeyHash string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE tenants SET api_key_hash = $2 WHERE id = $1`,
		id, newKeyHash,
	)
	return err
}

func (db *DB) InsertUsageLog(ctx context.Context, entry *models.UsageLog) error {
	query := `
        INSERT INTO usage_logs (tenant_id, endpoint, voice_id, language, input_chars, audio_bytes, latency_ms, streaming, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := db.Pool.Exec(ctx, query,
		entry.TenantID,
		entry.Endpoint,
		entry.VoiceID,
		entry.Language,
		entry.InputChars,
		entry.AudioBytes,
		entry.LatencyMs,
		entry.Streaming,
		entry.Error,
	)

	return err
}

func (db *DB) GetTenantUsage(ctx context.Context, tenantID string) (*models.UsageSummary, error) {
	query := `
        SELECT COUNT(*),
               COALESCE(SUM(input_chars), 0),
               COALESCE(SUM(audio_bytes), 0),
               COUNT(*) FILTER (WHERE error <> '')
        FROM usage_logs
        WHERE tenant_id = $1
    `

	summary := models.UsageSummary{TenantID: tenantID}
	err := db.Pool.QueryRow(ctx, query, tenantID).Scan(
		&summary.TotalRequests,
		&summary.TotalChars,
		&summary.TotalBytes,
		&summary.ErrorCount,
	)

	if err != nil {
		return nil, err
	}

	return &summary, nil
}
