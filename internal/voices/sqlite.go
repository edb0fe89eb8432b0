package voices

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS voice_profiles (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    voice_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT 'en',
    reference_audio_path TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (tenant_id, voice_id)
);
CREATE INDEX IF NOT EXISTS idx_voice_profiles_tenant ON voice_profiles (tenant_id);
`

// SQLiteStore persists custom voice profiles in SQLite and reference audio
// blobs on disk under a tenant-scoped directory.
type SQLiteStore struct {
	db         *sql.DB
	storageDir string
	log        *zap.SugaredLogger

	// Serializes create/delete so the quota check and the insert observe
	// the same row count. The unique constraint is the backstop.
	writeMu sync.Mutex
}

func NewSQLiteStore(dbPath, storageDir string, log *zap.SugaredLogger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create voices db directory: %w", err)
		}
	}
	if err := os.MkdirAll(storageDir, 0o750); err != nil {
		return nil, fmt.Errorf("create voice storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open voices db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create voices schema: %w", err)
	}

	return &SQLiteStore{db: db, storageDir: storageDir, log: log}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns the tenant's custom profiles followed by the preloaded set.
func (s *SQLiteStore) List(ctx context.Context, tenantID string) ([]models.VoiceProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT voice_id, name, description, language, reference_audio_path, created_at
        FROM voice_profiles
        WHERE tenant_id = ?
        ORDER BY created_at
    `, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer rows.Close()

	var profiles []models.VoiceProfile
	for rows.Next() {
		var p models.VoiceProfile
		var refPath sql.NullString
		if err := rows.Scan(&p.VoiceID, &p.Name, &p.Description, &p.Language, &refPath, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voice profile: %w", err)
		}
		p.ReferenceAudioPath = refPath.String
		p.IsCustom = true
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return append(profiles, preloadedProfiles()...), nil
}

// GetConfig resolves a voice for synthesis. Preloaded IDs resolve without a
// tenant filter; custom IDs only within the requesting tenant's namespace.
func (s *SQLiteStore) GetConfig(ctx context.Context, tenantID, voiceID string) (*models.VoiceConfig, error) {
	if cfg, ok := preloadedConfig(voiceID); ok {
		return cfg, nil
	}

	var language string
	var refPath sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT language, reference_audio_path
        FROM voice_profiles
        WHERE tenant_id = ? AND voice_id = ?
    `, tenantID, voiceID).Scan(&language, &refPath)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.E(apierr.NotFound, "Voice '%s' not found for tenant", voiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get voice config: %w", err)
	}

	return &models.VoiceConfig{
		VoiceID:            voiceID,
		Language:           language,
		ReferenceAudioPath: refPath.String,
	}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, tenantID string, params CreateParams) (*models.VoiceProfile, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var exists bool
	err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM voice_profiles WHERE tenant_id = ? AND voice_id = ?)
    `, tenantID, params.VoiceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check voice existence: %w", err)
	}
	if exists {
		return nil, apierr.E(apierr.AlreadyExists, "Voice '%s' already exists for tenant", params.VoiceID)
	}

	var count int
	err = s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM voice_profiles WHERE tenant_id = ?
    `, tenantID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count voices: %w", err)
	}
	if params.MaxVoices > 0 && count >= params.MaxVoices {
		return nil, apierr.E(apierr.QuotaExceeded, "Tenant has reached its limit of %d custom voices", params.MaxVoices)
	}

	// The blob is persisted before the row commits; a failed write aborts
	// the whole creation.
	var refPath string
	if len(params.ReferenceAudio) > 0 {
		refPath, err = s.storeReferenceAudio(tenantID, params.VoiceID, params.ReferenceAudio)
		if err != nil {
			return nil, apierr.Wrap(apierr.StorageFailure, err, "Failed to store reference audio")
		}
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO voice_profiles (id, tenant_id, voice_id, name, description, language, reference_audio_path, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, tenantID+"_"+params.VoiceID, tenantID, params.VoiceID, params.Name, params.Description, params.Language, refPath, now)
	if err != nil {
		if refPath != "" {
			if removeErr := os.Remove(refPath); removeErr != nil {
				s.log.Warnw("failed to remove orphaned reference audio", "path", refPath, "error", removeErr)
			}
		}
		return nil, fmt.Errorf("insert voice profile: %w", err)
	}

	return &models.VoiceProfile{
		VoiceID:            params.VoiceID,
		Name:               params.Name,
		Description:        params.Description,
		Language:           params.Language,
		ReferenceAudioPath: refPath,
		IsCustom:           true,
		CreatedAt:          now,
	}, nil
}

// Delete removes a custom profile. Returns false when nothing matched.
// The reference-audio blob is removed best-effort; a failed blob delete
// never rolls back the profile deletion.
func (s *SQLiteStore) Delete(ctx context.Context, tenantID, voiceID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var refPath sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT reference_audio_path FROM voice_profiles WHERE tenant_id = ? AND voice_id = ?
    `, tenantID, voiceID).Scan(&refPath)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup voice for deletion: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
        DELETE FROM voice_profiles WHERE tenant_id = ? AND voice_id = ?
    `, tenantID, voiceID)
	if err != nil {
		return false, fmt.Errorf("delete voice profile: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return false, nil
	}

	if refPath.String != "" {
		if removeErr := os.Remove(refPath.String); removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warnw("failed to delete reference audio", "path", refPath.String, "error", removeErr)
		}
	}

	return true, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, tenantID string) (*models.VoiceStats, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM voice_profiles WHERE tenant_id = ?
    `, tenantID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count voices: %w", err)
	}

	return &models.VoiceStats{
		TenantID:        tenantID,
		CustomVoices:    count,
		PreloadedVoices: len(preloadedVoices),
		TotalVoices:     count + len(preloadedVoices),
	}, nil
}

// storeReferenceAudio writes the blob under a tenant directory with a
// content-derived filename, so re-uploads of identical audio are idempotent
// at the file level.
func (s *SQLiteStore) storeReferenceAudio(tenantID, voiceID string, data []byte) (string, error) {
	tenantDir := filepath.Join(s.storageDir, tenantID)
	if err := os.MkdirAll(tenantDir, 0o750); err != nil {
		return "", fmt.Errorf("create tenant audio directory: %w", err)
	}

	sum := sha256.Sum256(data)
	filename := fmt.Sprintf("%s_%s.wav", voiceID, hex.EncodeToString(sum[:])[:16])
	path := filepath.Join(tenantDir, filename)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write reference audio: %w", err)
	}

	return path, nil
}
