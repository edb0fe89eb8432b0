package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSBackend stores audio objects in a JetStream object-store bucket under
// `{tenant_id}/{file_id}` keys and returns signed, time-limited URLs.
type NATSBackend struct {
	store   nats.ObjectStore
	bucket  string
	signer  *URLSigner
	baseURL string
	log     *zap.SugaredLogger
}

func NewNATSBackend(js nats.JetStreamContext, bucket string, signer *URLSigner, baseURL string, log *zap.SugaredLogger) (*NATSBackend, error) {
	// Create-first; bind when the bucket already exists.
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized audio storage",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = js.ObjectStore(bucket)
			if err != nil {
				return nil, fmt.Errorf("bind to existing audio bucket '%s': %w", bucket, err)
			}
		} else {
			return nil, fmt.Errorf("create audio bucket '%s': %w", bucket, err)
		}
	}

	return &NATSBackend{
		store:   store,
		bucket:  bucket,
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}, nil
}

// Probe confirms the bucket is reachable. Used once at startup to decide
// between this backend and the local fallback.
func (b *NATSBackend) Probe() error {
	if _, err := b.store.Status(); err != nil {
		return fmt.Errorf("audio bucket '%s' unreachable: %w", b.bucket, err)
	}
	return nil
}

func (b *NATSBackend) SaveAudio(_ context.Context, fileID string, data []byte, tenantID, contentType string) (string, error) {
	if err := validateIDs(tenantID, fileID); err != nil {
		return "", err
	}

	key := tenantID + "/" + fileID
	_, err := b.store.Put(&nats.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{"content_type": contentType},
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put object '%s' to bucket '%s': %w", key, b.bucket, err)
	}

	token, err := b.signer.Sign(tenantID, fileID)
	if err != nil {
		return "", fmt.Errorf("sign audio URL for '%s': %w", key, err)
	}

	return b.baseURL + "/v1/audio/" + tenantID + "/" + fileID + "?token=" + token, nil
}

// Fetch retrieves a stored object and its content type for serving a
// signed-URL request.
func (b *NATSBackend) Fetch(_ context.Context, tenantID, fileID string) ([]byte, string, error) {
	if err := validateIDs(tenantID, fileID); err != nil {
		return nil, "", err
	}

	key := tenantID + "/" + fileID
	obj, err := b.store.Get(key)
	if err != nil {
		return nil, "", fmt.Errorf("get object '%s' from bucket '%s': %w", key, b.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, "", fmt.Errorf("read object '%s': %w", key, readErr)
	}
	if closeErr != nil {
		b.log.Warnw("failed to close object reader", "key", key, "error", closeErr)
	}

	contentType := "audio/wav"
	if info, err := b.store.GetInfo(key); err == nil {
		if ct, ok := info.Metadata["content_type"]; ok && ct != "" {
			contentType = ct
		}
	}

	return data, contentType, nil
}

func (b *NATSBackend) VerifyToken(token, tenantID, fileID string) error {
	return b.signer.Verify(token, tenantID, fileID)
}
