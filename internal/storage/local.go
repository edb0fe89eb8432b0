// Package storage persists completed audio and hands back a retrievable
// URL: a path served by the authenticated retrieval endpoint for the local
// backend, or a signed time-limited URL for the object-store backend.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalBackend writes audio files under a tenant-scoped subdirectory.
// Retrieval goes through the authenticated /v1/audio endpoint; the returned
// URL is only reachable with a valid API key.
type LocalBackend struct {
	dir     string
	baseURL string
	log     *zap.SugaredLogger
}

func NewLocalBackend(dir, baseURL string, log *zap.SugaredLogger) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audio storage directory: %w", err)
	}
	return &LocalBackend{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), log: log}, nil
}

func (b *LocalBackend) SaveAudio(_ context.Context, fileID string, data []byte, tenantID, _ string) (string, error) {
	if err := validateIDs(tenantID, fileID); err != nil {
		return "", err
	}

	tenantDir := filepath.Join(b.dir, tenantID)
	if err := os.MkdirAll(tenantDir, 0o750); err != nil {
		return "", fmt.Errorf("create tenant audio directory: %w", err)
	}

	path := filepath.Join(tenantDir, fileID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}

	b.log.Debugw("saved audio to local storage", "path", path, "bytes", len(data))

	return b.baseURL + "/v1/audio/" + tenantID + "/" + fileID, nil
}

// FilePath resolves the on-disk location for serving. IDs are validated to
// keep requests inside the tenant directory.
func (b *LocalBackend) FilePath(tenantID, fileID string) (string, error) {
	if err := validateIDs(tenantID, fileID); err != nil {
		return "", err
	}
	return filepath.Join(b.dir, tenantID, fileID), nil
}

func validateIDs(tenantID, fileID string) error {
	for _, id := range []string{tenantID, fileID} {
		if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
			return fmt.Errorf("invalid storage identifier: %q", id)
		}
	}
	return nil
}
