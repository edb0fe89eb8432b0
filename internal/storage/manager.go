package storage

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
)

// Manager selects the active storage backend for the lifetime of the
// process. The object store is preferred when configured and reachable at
// startup; a failed probe degrades to local storage instead of failing
// startup. The choice never changes afterwards.
type Manager struct {
	local       *LocalBackend
	objectStore *NATSBackend
	log         *zap.SugaredLogger
}

type ManagerOptions struct {
	Backend     string // "local" or "nats"
	AudioDir    string
	BaseURL     string
	NATSURL     string
	Bucket      string
	Signer      *URLSigner
	ConnectNATS func(url string) (nats.JetStreamContext, error)
}

// DefaultNATSConnect dials NATS and opens a JetStream context.
func DefaultNATSConnect(url string) (nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return nc.JetStream()
}

func NewManager(opts ManagerOptions, log *zap.SugaredLogger) (*Manager, error) {
	local, err := NewLocalBackend(opts.AudioDir, opts.BaseURL, log)
	if err != nil {
		return nil, err
	}

	m := &Manager{local: local, log: log}

	if opts.Backend != "nats" {
		log.Infow("local storage backend initialized", "dir", opts.AudioDir)
		return m, nil
	}

	connect := opts.ConnectNATS
	if connect == nil {
		connect = DefaultNATSConnect
	}

	js, err := connect(opts.NATSURL)
	if err != nil {
		log.Warnw("object store unreachable, falling back to local storage", "error", err)
		return m, nil
	}

	backend, err := NewNATSBackend(js, opts.Bucket, opts.Signer, opts.BaseURL, log)
	if err != nil {
		log.Warnw("object store initialization failed, falling back to local storage", "error", err)
		return m, nil
	}

	if err := backend.Probe(); err != nil {
		log.Warnw("object store probe failed, falling back to local storage", "error", err)
		return m, nil
	}

	m.objectStore = backend
	log.Infow("object storage backend initialized", "bucket", opts.Bucket)

	return m, nil
}

func (m *Manager) UsingObjectStore() bool {
	return m.objectStore != nil
}

// BackendName is the value reported in API responses.
func (m *Manager) BackendName() string {
	if m.UsingObjectStore() {
		return "object-store"
	}
	return "local"
}

// SaveAudio persists the audio through the active backend. A failure here
// is fatal for the request; callers must not continue as if it succeeded.
func (m *Manager) SaveAudio(ctx context.Context, fileID string, data []byte, tenantID, contentType string) (string, error) {
	var url string
	var err error
	if m.UsingObjectStore() {
		url, err = m.objectStore.SaveAudio(ctx, fileID, data, tenantID, contentType)
	} else {
		url, err = m.local.SaveAudio(ctx, fileID, data, tenantID, contentType)
	}
	if err != nil {
		return "", apierr.Wrap(apierr.StorageFailure, err, "Failed to save audio file to storage")
	}
	return url, nil
}

// LocalFilePath is only valid while the local backend is active. With the
// object store active, clients must use the signed URL instead.
func (m *Manager) LocalFilePath(tenantID, fileID string) (string, error) {
	if m.UsingObjectStore() {
		return "", apierr.E(apierr.InvalidOperation, "Direct file serving not available with object storage. Use signed URLs.")
	}
	path, err := m.local.FilePath(tenantID, fileID)
	if err != nil {
		return "", apierr.Wrap(apierr.InvalidArgument, err, "Invalid audio identifier")
	}
	return path, nil
}

// FetchSigned serves an object-store request authorized by a signed token.
func (m *Manager) FetchSigned(ctx context.Context, token, tenantID, fileID string) ([]byte, string, error) {
	if !m.UsingObjectStore() {
		return nil, "", apierr.E(apierr.InvalidOperation, "Signed audio URLs are not issued by the local storage backend")
	}
	if err := m.objectStore.VerifyToken(token, tenantID, fileID); err != nil {
		return nil, "", err
	}
	data, contentType, err := m.objectStore.Fetch(ctx, tenantID, fileID)
	if err != nil {
		return nil, "", apierr.Wrap(apierr.NotFound, err, "Audio file not found")
	}
	return data, contentType, nil
}
