package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-gateway/internal/model"
)

type captureTarget struct {
	mu       sync.Mutex
	sessions []*model.CorrectionSession
	err      error
	block    chan struct{}
}

func (c *captureTarget) Write(_ context.Context, sess *model.CorrectionSession) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sessions = append(c.sessions, sess)
	return nil
}

func (c *captureTarget) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func session(tenant string) *model.CorrectionSession {
	return &model.CorrectionSession{
		ID:        uuid.New(),
		TenantKey: tenant,
		Status:    model.StatusSucceeded,
	}
}

func TestRecordDeliversToAllTargets(t *testing.T) {
	a := &captureTarget{}
	b := &captureTarget{}
	s := NewSink(8, testLogger(), a, b)

	s.Record(session("acme@example.com"))
	s.Close()

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestRecordNeverBlocksWhenQueueIsFull(t *testing.T) {
	blocked := &captureTarget{block: make(chan struct{})}
	s := NewSink(1, testLogger(), blocked)
	defer close(blocked.block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Record(session("acme@example.com"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full audit queue")
	}
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	failing := &captureTarget{err: errors.New("table missing")}
	ok := &captureTarget{}
	s := NewSink(8, testLogger(), failing, ok)

	s.Record(session("acme@example.com"))
	s.Close()

	// The healthy target still received the record.
	assert.Equal(t, 1, ok.count())
}

func TestCloseDrainsQueuedRecords(t *testing.T) {
	target := &captureTarget{}
	s := NewSink(16, testLogger(), target)

	for i := 0; i < 10; i++ {
		s.Record(session("acme@example.com"))
	}
	s.Close()
	require.Equal(t, 10, target.count())
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	target := &captureTarget{}
	s := NewSink(8, testLogger(), target)
	s.Close()

	assert.NotPanics(t, func() {
		s.Record(session("acme@example.com"))
	})
	assert.Equal(t, 0, target.count())
}
