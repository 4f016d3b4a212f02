// internal/audit/sink.go
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"sql-gateway/internal/messaging"
	"sql-gateway/internal/metrics"
	"sql-gateway/internal/model"
)

// Target is one place terminal sessions get appended to.
type Target interface {
	Write(ctx context.Context, sess *model.CorrectionSession) error
}

const writeTimeout = 5 * time.Second

// Sink records correction sessions off the response path. Record never
// blocks the caller: sessions queue onto a bounded channel drained by a
// background worker, and anything that cannot be queued or written is
// counted and dropped. An audit failure never fails a query.
type Sink struct {
	targets []Target
	logger  *slog.Logger

	ch   chan *model.CorrectionSession
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewSink(queueSize int, logger *slog.Logger, targets ...Target) *Sink {
	s := &Sink{
		targets: targets,
		logger:  logger,
		ch:      make(chan *model.CorrectionSession, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues a terminal session, dropping it if the queue is full.
func (s *Sink) Record(sess *model.CorrectionSession) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.AuditDropped.Inc()
		return
	}
	select {
	case s.ch <- sess:
	default:
		metrics.AuditDropped.Inc()
		s.logger.Warn("audit queue full, record dropped", "tenant", sess.TenantKey, "session", sess.ID)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for sess := range s.ch {
		for _, t := range s.targets {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := t.Write(ctx, sess); err != nil {
				metrics.AuditDropped.Inc()
				s.logger.Warn("audit write failed", "tenant", sess.TenantKey, "session", sess.ID, "error", err)
			}
			cancel()
		}
	}
}

// Close stops intake and drains whatever is already queued.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}

// Recorder is the admin-store slice the database target needs.
type Recorder interface {
	InsertAuditRecord(ctx context.Context, sess *model.CorrectionSession) error
}

// DBTarget appends sessions to the admin database's audit table.
type DBTarget struct {
	Store Recorder
}

func (t *DBTarget) Write(ctx context.Context, sess *model.CorrectionSession) error {
	return t.Store.InsertAuditRecord(ctx, sess)
}

// AMQPTarget publishes sessions to the audit queue for external consumers.
type AMQPTarget struct {
	Client *messaging.RabbitClient
}

func (t *AMQPTarget) Write(_ context.Context, sess *model.CorrectionSession) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return t.Client.Publish(body)
}
