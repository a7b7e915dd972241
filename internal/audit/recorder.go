package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/incident_desk/internal/metrics"
	"github.com/Skotchmaster/incident_desk/internal/models"
)

const writeTimeout = 5 * time.Second

// Sink persists audit entries somewhere. Each sink sees every entry.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *models.AuditLog) error
}

type Store interface {
	CreateAudit(ctx context.Context, entry *models.AuditLog) error
}

type storeSink struct {
	store Store
}

// StoreSink adapts the relational store to a Sink.
func StoreSink(s Store) Sink { return storeSink{store: s} }

func (s storeSink) Name() string { return "database" }

func (s storeSink) Write(ctx context.Context, entry *models.AuditLog) error {
	return s.store.CreateAudit(ctx, entry)
}

// Recorder writes entries in the background. A failed write is logged and
// counted but never reported to the caller.
type Recorder struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sinks:   sinks,
		logger:  logger.With("component", "audit"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record enqueues entry and returns immediately. Every sink sees the same ID.
func (r *Recorder) Record(entry models.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.logger.Warn("audit_write_failed", "reason", "recorder closed", "action", entry.Action, "target_id", entry.TargetID)
		return
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	go func() {
		defer r.wg.Done()
		r.write(&entry)
	}()
}

func (r *Recorder) write(entry *models.AuditLog) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.Write(ctx, entry)
		cancel()

		if err != nil {
			r.logger.Error("audit_write_failed",
				"sink", s.Name(),
				"action", entry.Action,
				"target_type", entry.TargetType,
				"target_id", entry.TargetID,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.AuditWriteFailures.WithLabelValues(s.Name()).Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.AuditWrites.WithLabelValues(s.Name()).Inc()
		}
	}
}

// Close stops accepting entries and waits for pending writes or ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
