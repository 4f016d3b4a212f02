// internal/model/session.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// ErrorCategory classifies every failure before it reaches the correction
// loop. Only SyntaxOrSemantic drives statement revision; the rest are
// terminal for the session.
type ErrorCategory string

const (
	CategoryNone              ErrorCategory = ""
	CategoryGuardRejection    ErrorCategory = "guard_rejection"
	CategoryConnection        ErrorCategory = "connection_error"
	CategorySyntaxOrSemantic  ErrorCategory = "syntax_or_semantic"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryRetryExhausted    ErrorCategory = "retry_budget_exhausted"
	CategoryPoolCreation      ErrorCategory = "pool_creation_failed"
	CategoryCheckoutTimeout   ErrorCategory = "checkout_timeout"
	CategoryTenantNotFound    ErrorCategory = "tenant_not_found"
	CategoryTenantSuspended   ErrorCategory = "tenant_suspended"
	CategoryGenerationFailure ErrorCategory = "generation_failed"
)

// SessionStatus is the terminal outcome of one correction-loop session.
type SessionStatus string

const (
	StatusSucceeded       SessionStatus = "succeeded"
	StatusExhausted       SessionStatus = "exhausted"
	StatusRejectedByGuard SessionStatus = "rejected_by_guard"
	StatusFailed          SessionStatus = "failed"
)

// Result is the normalized outcome of a successful statement execution.
// Values are already JSON-safe (times as RFC3339 strings, numerics as
// float64, binary as hex).
type Result struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated,omitempty"`
	Elapsed   time.Duration `json:"-"`
}

// QueryAttempt records one execution try inside a session. Immutable once
// appended.
type QueryAttempt struct {
	ID            uuid.UUID     `json:"id"`
	Number        int           `json:"number"`
	SQL           string        `json:"sql"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Success       bool          `json:"success"`
	RowCount      int           `json:"row_count,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// CorrectionSession is the full history of one user-facing request: the
// ordered attempts and the terminal status. It lives for exactly one
// request and survives only as the audit record of its attempts.
type CorrectionSession struct {
	ID         uuid.UUID      `json:"id"`
	TenantKey  string         `json:"tenant_key"`
	Question   string         `json:"question,omitempty"`
	Attempts   []QueryAttempt `json:"attempts"`
	Status     SessionStatus  `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// LastAttempt returns the most recent attempt, or nil for a session that
// never reached the executor.
func (s *CorrectionSession) LastAttempt() *QueryAttempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}
