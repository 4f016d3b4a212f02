// internal/session/controller.go
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sql-gateway/internal/directory"
	"sql-gateway/internal/executor"
	"sql-gateway/internal/guard"
	"sql-gateway/internal/llm"
	"sql-gateway/internal/metrics"
	"sql-gateway/internal/model"
)

// Generator is the SQL-generation collaborator. Its output is untrusted and
// always re-validated by the guard before it reaches a pool.
type Generator interface {
	GenerateOrRevise(ctx context.Context, req llm.Request) (string, error)
}

// Executor runs one validated statement and returns a classified outcome.
type Executor interface {
	Execute(ctx context.Context, tenantKey, statement string, rowCap int) (*model.Result, error)
}

// TenantResolver resolves a tenant key to its descriptor.
type TenantResolver interface {
	GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error)
}

// Recorder receives terminal sessions, best-effort.
type Recorder interface {
	Record(sess *model.CorrectionSession)
}

// Request is one user-facing query. SQL, when set, is the first candidate
// statement; otherwise the generator derives one from Question.
type Request struct {
	Question string
	SQL      string
	RowLimit int
	DryRun   bool
}

// Response is the final payload: the last attempted statement, a success
// flag, and either a result set or a terminal error category plus message.
type Response struct {
	SQL           string               `json:"sql"`
	Success       bool                 `json:"success"`
	Executed      bool                 `json:"executed"`
	Columns       []string             `json:"columns,omitempty"`
	Rows          [][]any              `json:"rows,omitempty"`
	RowCount      int                  `json:"row_count"`
	Truncated     bool                 `json:"truncated,omitempty"`
	LimitApplied  int                  `json:"limit_applied,omitempty"`
	Status        model.SessionStatus  `json:"status,omitempty"`
	ErrorCategory model.ErrorCategory  `json:"error_category,omitempty"`
	Error         string               `json:"error,omitempty"`
	Attempts      []model.QueryAttempt `json:"attempts,omitempty"`
	ElapsedMs     int64                `json:"elapsed_ms"`
}

// Runner drives one correction loop per request: validate, execute, and on
// a statement-attributable failure ask the generator for a revision, up to
// the retry budget. Attempts within a session are strictly sequential.
type Runner struct {
	directory  TenantResolver
	guard      *guard.Guard
	executor   Executor
	generator  Generator
	sink       Recorder
	maxRetries int
	maxRows    int
	logger     *slog.Logger
}

func NewRunner(
	directory TenantResolver,
	g *guard.Guard,
	exec Executor,
	gen Generator,
	sink Recorder,
	maxRetries, maxRows int,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		directory:  directory,
		guard:      g,
		executor:   exec,
		generator:  gen,
		sink:       sink,
		maxRetries: maxRetries,
		maxRows:    maxRows,
		logger:     logger,
	}
}

// RunQuery executes the full loop for one tenant request. All failures are
// encoded in the Response; the error return is reserved for a nil request.
func (r *Runner) RunQuery(ctx context.Context, tenantKey string, req Request) *Response {
	start := time.Now()

	// The configured maximum is a hard ceiling: out-of-range requests clamp.
	rowCap := req.RowLimit
	if rowCap <= 0 || rowCap > r.maxRows {
		rowCap = r.maxRows
	}

	desc, err := r.directory.GetTenant(ctx, tenantKey)
	if err != nil {
		return r.preflightFailure(tenantKey, req, err, start)
	}

	candidate := req.SQL
	if candidate == "" {
		candidate, err = r.generate(ctx, llm.Request{Question: req.Question, Catalog: desc.Catalog})
		if err != nil {
			return r.preflightFailure(tenantKey, req, err, start)
		}
	}

	if req.DryRun {
		return &Response{
			SQL:       candidate,
			Success:   true,
			Executed:  false,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	}

	sess := &model.CorrectionSession{
		ID:        uuid.New(),
		TenantKey: tenantKey,
		Question:  req.Question,
		StartedAt: start,
	}

	resp := r.loop(ctx, sess, desc, candidate, rowCap)
	resp.Attempts = sess.Attempts
	resp.Status = sess.Status
	resp.ElapsedMs = time.Since(start).Milliseconds()

	sess.FinishedAt = time.Now()
	metrics.QueriesTotal.WithLabelValues(tenantKey, string(sess.Status)).Inc()
	metrics.SessionAttempts.Observe(float64(len(sess.Attempts)))
	r.sink.Record(sess)

	return resp
}

// loop is the state machine: Guarding -> Executing -> Succeeded | Retrying
// -> Guarding ... | Exhausted | RejectedByGuard.
func (r *Runner) loop(ctx context.Context, sess *model.CorrectionSession, desc *model.TenantDescriptor, candidate string, rowCap int) *Response {
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		// Guarding. A rejection is terminal and consumes no connection.
		verdict := r.guard.Validate(candidate)
		if !verdict.OK {
			sess.Status = model.StatusRejectedByGuard
			sess.Attempts = append(sess.Attempts, model.QueryAttempt{
				ID:            uuid.New(),
				Number:        attempt,
				SQL:           candidate,
				StartedAt:     time.Now(),
				FinishedAt:    time.Now(),
				ErrorCategory: model.CategoryGuardRejection,
				ErrorMessage:  verdict.Reason,
			})
			return &Response{
				SQL:           candidate,
				Executed:      false,
				ErrorCategory: model.CategoryGuardRejection,
				Error:         verdict.Reason,
			}
		}

		statement := verdict.Statement

		// Executing.
		rec := model.QueryAttempt{
			ID:        uuid.New(),
			Number:    attempt,
			SQL:       statement,
			StartedAt: time.Now(),
		}
		result, err := r.executor.Execute(ctx, sess.TenantKey, statement, rowCap)
		rec.FinishedAt = time.Now()

		if err == nil {
			rec.Success = true
			rec.RowCount = result.RowCount
			sess.Attempts = append(sess.Attempts, rec)
			sess.Status = model.StatusSucceeded
			return &Response{
				SQL:          statement,
				Success:      true,
				Executed:     true,
				Columns:      result.Columns,
				Rows:         result.Rows,
				RowCount:     result.RowCount,
				Truncated:    result.Truncated,
				LimitApplied: verdict.LimitInjected,
			}
		}

		category, message := classify(err)
		rec.ErrorCategory = category
		rec.ErrorMessage = message
		sess.Attempts = append(sess.Attempts, rec)

		// Only a statement-attributable failure is worth a revision;
		// connection loss and timeouts are terminal as-is.
		if category != model.CategorySyntaxOrSemantic {
			sess.Status = model.StatusFailed
			return &Response{
				SQL:           statement,
				Executed:      true,
				ErrorCategory: category,
				Error:         message,
			}
		}

		if attempt == r.maxRetries {
			break
		}

		// Retrying: hand the failing statement and error text back to the
		// generator for a revision, then loop into Guarding.
		revised, gerr := r.generate(ctx, llm.Request{
			Question:   sess.Question,
			Catalog:    desc.Catalog,
			PriorSQL:   statement,
			PriorError: message,
		})
		if gerr != nil {
			sess.Status = model.StatusFailed
			return &Response{
				SQL:           statement,
				Executed:      true,
				ErrorCategory: model.CategoryGenerationFailure,
				Error:         gerr.Error(),
			}
		}
		r.logger.Info("statement revised after failure",
			"tenant", sess.TenantKey, "attempt", attempt, "error", message)
		candidate = revised
	}

	sess.Status = model.StatusExhausted
	last := sess.LastAttempt()
	return &Response{
		SQL:           last.SQL,
		Executed:      true,
		ErrorCategory: model.CategoryRetryExhausted,
		Error:         last.ErrorMessage,
	}
}

func (r *Runner) generate(ctx context.Context, req llm.Request) (string, error) {
	sql, err := r.generator.GenerateOrRevise(ctx, req)
	if err != nil {
		return "", err
	}
	return sql, nil
}

// preflightFailure covers failures before any session exists: tenant
// resolution and initial generation. A zero-attempt session still flows to
// the audit sink so the request leaves a trace.
func (r *Runner) preflightFailure(tenantKey string, req Request, err error, start time.Time) *Response {
	category := model.CategoryGenerationFailure
	switch {
	case errors.Is(err, directory.ErrTenantNotFound):
		category = model.CategoryTenantNotFound
	case errors.Is(err, directory.ErrTenantSuspended):
		category = model.CategoryTenantSuspended
	}

	sess := &model.CorrectionSession{
		ID:         uuid.New(),
		TenantKey:  tenantKey,
		Question:   req.Question,
		Status:     model.StatusFailed,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	metrics.QueriesTotal.WithLabelValues(tenantKey, string(model.StatusFailed)).Inc()
	r.sink.Record(sess)

	return &Response{
		SQL:           req.SQL,
		ErrorCategory: category,
		Error:         err.Error(),
		ElapsedMs:     time.Since(start).Milliseconds(),
	}
}

func classify(err error) (model.ErrorCategory, string) {
	var xerr *executor.Error
	if errors.As(err, &xerr) {
		return xerr.Category, xerr.Message
	}
	return model.CategoryConnection, err.Error()
}
