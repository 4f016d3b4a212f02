// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"sql-gateway/internal/model"
	"sql-gateway/internal/pool"
)

// Acquirer is the slice of the pool manager the executor needs.
type Acquirer interface {
	Acquire(ctx context.Context, tenantKey string) (*pool.Conn, error)
}

// Error is a classified execution failure. No raw database error crosses
// into the correction loop unclassified.
type Error struct {
	Category model.ErrorCategory
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs validated statements against a tenant's pool under a hard
// wall-clock timeout and a row cap.
type Executor struct {
	pools   Acquirer
	timeout time.Duration
	logger  *slog.Logger
}

func New(pools Acquirer, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{pools: pools, timeout: timeout, logger: logger}
}

// Execute acquires a connection, issues the statement, and normalizes the
// outcome. The connection is released on every exit path. A connection-level
// failure is retried transparently once; statement failures are not.
func (e *Executor) Execute(ctx context.Context, tenantKey, statement string, rowCap int) (*model.Result, error) {
	res, err := e.executeOnce(ctx, tenantKey, statement, rowCap)
	if err != nil {
		var xerr *Error
		if errors.As(err, &xerr) && xerr.Category == model.CategoryConnection && ctx.Err() == nil {
			e.logger.Warn("retrying after connection error", "tenant", tenantKey, "error", xerr.Message)
			return e.executeOnce(ctx, tenantKey, statement, rowCap)
		}
	}
	return res, err
}

func (e *Executor) executeOnce(ctx context.Context, tenantKey, statement string, rowCap int) (*model.Result, error) {
	start := time.Now()

	conn, err := e.pools.Acquire(ctx, tenantKey)
	if err != nil {
		return nil, classifyAcquire(err)
	}
	defer conn.Release()

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := conn.Query(qctx, statement)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &model.Result{Columns: columns, Rows: make([][]any, 0, 16)}
	for rows.Next() {
		if result.RowCount >= rowCap {
			result.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, Classify(err)
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if !result.Truncated {
		if err := rows.Err(); err != nil {
			return nil, Classify(err)
		}
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// classifyAcquire maps pool and directory failures. These are never
// attributable to the statement text, so none of them feed the correction
// loop.
func classifyAcquire(err error) *Error {
	switch {
	case errors.Is(err, pool.ErrCheckoutTimeout):
		return &Error{Category: model.CategoryCheckoutTimeout, Message: err.Error(), Err: err}
	case errors.Is(err, pool.ErrPoolCreation):
		return &Error{Category: model.CategoryPoolCreation, Message: err.Error(), Err: err}
	default:
		return &Error{Category: model.CategoryConnection, Message: err.Error(), Err: err}
	}
}

// Classify buckets a database error: timeout for deadline/cancel paths,
// syntax-or-semantic for statements the server rejected, connection for
// everything infrastructural.
func Classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Category: model.CategoryTimeout, Message: "query exceeded execution deadline", Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57014": // query_canceled, e.g. statement_timeout
			return &Error{Category: model.CategoryTimeout, Message: pgErr.Message, Err: err}
		}
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "28", "3D", "53", "57", "58":
				// connection exceptions, auth, invalid database, resource limits
				return &Error{Category: model.CategoryConnection, Message: pgErr.Message, Err: err}
			}
		}
		// the server understood the protocol but rejected the statement
		return &Error{Category: model.CategorySyntaxOrSemantic, Message: pgErr.Message, Err: err}
	}

	return &Error{Category: model.CategoryConnection, Message: err.Error(), Err: err}
}
