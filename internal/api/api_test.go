package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/api"
	"github.com/callwaiting/tts-service/internal/auth"
	"github.com/callwaiting/tts-service/internal/engine"
	"github.com/callwaiting/tts-service/internal/models"
	"github.com/callwaiting/tts-service/internal/ratelimit"
	"github.com/callwaiting/tts-service/internal/storage"
	"github.com/callwaiting/tts-service/internal/stream"
	"github.com/callwaiting/tts-service/internal/synth"
	"github.com/callwaiting/tts-service/internal/usage"
	"github.com/callwaiting/tts-service/internal/voices"
)

type countingEngine struct {
	calls  int64
	output []byte
}

func (e *countingEngine) Name() string { return "mock" }

func (e *countingEngine) Synthesize(_ context.Context, _ string, _ engine.VoiceSpec) ([]byte, error) {
	atomic.AddInt64(&e.calls, 1)
	return e.output, nil
}

func fakeWAV(size int) []byte {
	data := make([]byte, size)
	copy(data, "RIFF")
	return data
}

type fixture struct {
	router *mux.Router
	engine *countingEngine
}

func tenantFixture(id string, perMinute int) *models.Tenant {
	return &models.Tenant{
		ID:                 id,
		Name:               id,
		Active:             true,
		Permissions:        []string{models.PermSynthesize, models.PermVoices, models.PermUpload},
		RateLimitPerMinute: perMinute,
		RateLimitPerHour:   1000,
		MaxVoices:          10,
	}
}

func newFixture(t *testing.T, tenants map[string]*models.Tenant) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()

	registry := auth.NewMemoryRegistry()
	for key, tenant := range tenants {
		registry.Add(key, tenant)
	}

	store, err := voices.NewSQLiteStore(filepath.Join(t.TempDir(), "voices.db"), t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := &countingEngine{output: fakeWAV(4096)}

	mgr, err := storage.NewManager(storage.ManagerOptions{
		Backend:  "local",
		AudioDir: t.TempDir(),
		BaseURL:  "http://localhost:8000",
	}, log)
	require.NoError(t, err)

	recorder := usage.NewRecorder(nil, log)
	t.Cleanup(recorder.Close)

	server := api.NewServer(api.Options{
		Auth:       auth.NewMiddleware(registry),
		Limiter:    ratelimit.NewMemoryLimiter(),
		Voices:     store,
		Dispatcher: synth.NewDispatcher(eng, synth.Options{Timeout: 5 * time.Second, MaxTextLength: 5000}, log),
		Streamer:   stream.New(1024, 64, log),
		Storage:    mgr,
		Usage:      recorder,
	}, log)

	return &fixture{router: server.Routes(), engine: eng}
}

func (f *fixture) do(req *http.Request, apiKey string) *httptest.ResponseRecorder {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func synthesizeJSON(text, voiceID string) *http.Request {
	body, _ := json.Marshal(map[string]any{"text": text, "voice_id": voiceID, "streaming": false})
	req := httptest.NewRequest(http.MethodPost, "/v1/synthesize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Kind
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "local", body["storage_backend"])
}

func TestSynthesizeRequiresAuth(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(synthesizeJSON("hello", "default"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(synthesizeJSON("hello", "default"), "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSynthesizeReturnsAudioWithHeaders(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(synthesizeJSON("hello world", "default"), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tenant-a", rec.Header().Get("X-Tenant-ID"))
	assert.Equal(t, "default", rec.Header().Get("X-Voice-ID"))
	assert.Equal(t, "false", rec.Header().Get("X-Streaming"))
	assert.Equal(t, fakeWAV(4096), rec.Body.Bytes())
}

func TestRateLimitRejectsThirdCallInWindow(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 2)})

	for i := 0; i < 2; i++ {
		rec := f.do(synthesizeJSON("hello", "default"), "key-a")
		require.Equal(t, http.StatusOK, rec.Code, "call %d", i+1)
	}

	rec := f.do(synthesizeJSON("hello", "default"), "key-a")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Current"))
	assert.Equal(t, "rate_limited", errorKind(t, rec))
}

func TestEmptyTextNeverReachesEngine(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(synthesizeJSON("", "default"), "key-a")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Text cannot be empty")
	assert.Zero(t, atomic.LoadInt64(&f.engine.calls))
}

func TestUnknownVoiceReturns404(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(synthesizeJSON("hello", "no-such-voice"), "key-a")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, atomic.LoadInt64(&f.engine.calls))
}

func uploadRequest(t *testing.T, voiceID, contentType string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="audio_file"; filename="ref.wav"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(fakeWAV(256))
	require.NoError(t, err)

	require.NoError(t, mw.WriteField("voice_id", voiceID))
	require.NoError(t, mw.WriteField("name", "Test Voice"))
	require.NoError(t, mw.WriteField("language", "en-US"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/voices/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadRejectsNonAudioFile(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(uploadRequest(t, "myvoice", "text/plain"), "key-a")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File must be an audio file")
}

func TestUploadRequiresPermission(t *testing.T) {
	tenant := tenantFixture("tenant-a", 100)
	tenant.Permissions = []string{models.PermSynthesize}
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenant})

	rec := f.do(uploadRequest(t, "myvoice", "audio/wav"), "key-a")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadListSynthesizeDeleteLifecycle(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(uploadRequest(t, "myvoice", "audio/wav"), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/voices", nil), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		TotalCount int                   `json:"total_count"`
		Voices     []models.VoiceProfile `json:"voices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 4, listing.TotalCount) // 3 preloaded + 1 custom

	rec = f.do(synthesizeJSON("hello", "myvoice"), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/v1/voices/myvoice", nil), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(synthesizeJSON("hello", "myvoice"), "key-a")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUnknownVoiceReturns404(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(httptest.NewRequest(http.MethodDelete, "/v1/voices/never-created", nil), "key-a")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))
}

func TestVoicesAreInvisibleAcrossTenants(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{
		"key-a": tenantFixture("tenant-a", 100),
		"key-b": tenantFixture("tenant-b", 100),
	})

	rec := f.do(uploadRequest(t, "private", "audio/wav"), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(synthesizeJSON("hello", "private"), "key-b")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/v1/voices/private", nil), "key-b")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(synthesizeJSON("hello", "private"), "key-a")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSynthesizeURLSavesAndServesAudio(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	body, _ := json.Marshal(map[string]any{"text": "hello", "voice_id": "default"})
	req := httptest.NewRequest(http.MethodPost, "/v1/synthesize-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req, "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		URL            string `json:"url"`
		FileID         string `json:"file_id"`
		StorageBackend string `json:"storage_backend"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local", resp.StorageBackend)
	require.Contains(t, resp.URL, "/v1/audio/tenant-a/")

	path := strings.TrimPrefix(resp.URL, "http://localhost:8000")
	rec = f.do(httptest.NewRequest(http.MethodGet, path, nil), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fakeWAV(4096), rec.Body.Bytes())
}

func TestAudioEndpointRejectsOtherTenants(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{
		"key-a": tenantFixture("tenant-a", 100),
		"key-b": tenantFixture("tenant-b", 100),
	})

	body, _ := json.Marshal(map[string]any{"text": "hello", "voice_id": "default"})
	req := httptest.NewRequest(http.MethodPost, "/v1/synthesize-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req, "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	path := strings.TrimPrefix(resp.URL, "http://localhost:8000")

	rec = f.do(httptest.NewRequest(http.MethodGet, path, nil), "key-b")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantStats(t *testing.T) {
	f := newFixture(t, map[string]*models.Tenant{"key-a": tenantFixture("tenant-a", 100)})

	rec := f.do(uploadRequest(t, "myvoice", "audio/wav"), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/tenant/stats", nil), "key-a")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TenantID string `json:"tenant_id"`
		Voices   struct {
			CustomVoices int `json:"custom_voices"`
			TotalVoices  int `json:"total_voices"`
		} `json:"voices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant-a", body.TenantID)
	assert.Equal(t, 1, body.Voices.CustomVoices)
	assert.Equal(t, 4, body.Voices.TotalVoices)
}
