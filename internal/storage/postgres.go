// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"sql-gateway/internal/model"
)

const (
	tenantTable = "db_connection_infos"
	auditTable  = "onboarding_audit_log"
)

// ErrTenantNotFound is returned when no record exists for a tenant key.
var ErrTenantNotFound = errors.New("tenant not found")

// Storage is the gateway's read path into the admin database: tenant
// connection records written by the onboarding flow, and the append-only
// audit log. The onboarding CRUD itself lives outside this service.
type Storage struct {
	DB *sql.DB
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to admin db: %w", err)
	}
	return &Storage{DB: db}, nil
}

// GetTenant loads the connection descriptor and catalog for one tenant key.
// Suspended tenants are returned with their status intact; the directory
// decides what to do with them.
func (s *Storage) GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error) {
	query := fmt.Sprintf(`
		SELECT user_email, host, port, db_user, db_password, db_name,
		       COALESCE(catalog_markdown, ''), status, created_at
		FROM %s
		WHERE user_email = $1`, tenantTable)

	d := &model.TenantDescriptor{}
	err := s.DB.QueryRowContext(ctx, query, key).Scan(
		&d.Key, &d.Host, &d.Port, &d.User, &d.Password, &d.Database,
		&d.Catalog, &d.Status, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}
	return d, nil
}

// InsertAuditRecord appends the terminal outcome of one session. The full
// attempt history goes into a jsonb column so callers can show what was
// tried.
func (s *Storage) InsertAuditRecord(ctx context.Context, sess *model.CorrectionSession) error {
	attempts, err := json.Marshal(sess.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	var finalSQL string
	var errCategory, errMessage sql.NullString
	rowCount := 0
	if last := sess.LastAttempt(); last != nil {
		finalSQL = last.SQL
		rowCount = last.RowCount
		if last.ErrorCategory != model.CategoryNone {
			errCategory = sql.NullString{String: string(last.ErrorCategory), Valid: true}
			errMessage = sql.NullString{String: last.ErrorMessage, Valid: true}
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, user_email, question, final_sql, final_status, attempt_count,
			row_count, error_category, error_message, attempts, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, auditTable)

	_, err = s.DB.ExecContext(ctx, query,
		sess.ID, sess.TenantKey, sess.Question, finalSQL, sess.Status,
		len(sess.Attempts), rowCount, errCategory, errMessage,
		attempts, sess.StartedAt, sess.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}
	return nil
}

// Ping reports admin database reachability for health checks.
func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.DB.Close()
}
