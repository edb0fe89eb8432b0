package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/db"
	"github.com/callwaiting/tts-service/internal/models"
)

// Recorder writes per-request usage entries to Postgres without blocking
// the request path. With no database configured it degrades to a no-op so
// the service runs identically in database-less deployments.
type Recorder struct {
	db      *db.DB
	log     *zap.SugaredLogger
	entries chan *models.UsageLog
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

const recorderQueueSize = 256

func NewRecorder(database *db.DB, log *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		db:      database,
		log:     log,
		entries: make(chan *models.UsageLog, recorderQueueSize),
		done:    make(chan struct{}),
	}

	go r.run()

	return r
}

func (r *Recorder) run() {
	defer close(r.done)

	for entry := range r.entries {
		if r.db == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.db.InsertUsageLog(ctx, entry)
		cancel()

		if err != nil {
			r.log.Warnw("failed to record usage entry",
				"tenant_id", entry.TenantID,
				"endpoint", entry.Endpoint,
				"error", err)
		}
	}
}

// Record queues a usage entry. Entries are dropped rather than blocking
// when the queue is full, and silently discarded after Close.
func (r *Recorder) Record(entry *models.UsageLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.entries <- entry:
	default:
		r.log.Warnw("usage queue full, dropping entry", "tenant_id", entry.TenantID)
	}
}

// TenantUsage reports aggregate usage for one tenant.
func (r *Recorder) TenantUsage(ctx context.Context, tenantID string) (*models.UsageSummary, error) {
	if r.db == nil {
		return &models.UsageSummary{TenantID: tenantID}, nil
	}

	summary, err := r.db.GetTenantUsage(ctx, tenantID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "Failed to load usage summary")
	}

	return summary, nil
}

// Close drains the queue and stops the worker. Safe to call more than
// once; entries recorded afterwards are discarded.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()

	<-r.done
}
