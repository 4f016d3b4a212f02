package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"sql-gateway/internal/model"
	"sql-gateway/internal/pool"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.ErrorCategory
	}{
		{"deadline", context.DeadlineExceeded, model.CategoryTimeout},
		{"canceled", context.Canceled, model.CategoryTimeout},
		{"statement timeout", &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}, model.CategoryTimeout},
		{"syntax error", &pgconn.PgError{Code: "42601", Message: "syntax error at or near"}, model.CategorySyntaxOrSemantic},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: `column "usrname" does not exist`}, model.CategorySyntaxOrSemantic},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: `relation "user" does not exist`}, model.CategorySyntaxOrSemantic},
		{"division by zero", &pgconn.PgError{Code: "22012", Message: "division by zero"}, model.CategorySyntaxOrSemantic},
		{"auth failure", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, model.CategoryConnection},
		{"invalid database", &pgconn.PgError{Code: "3D000", Message: "database does not exist"}, model.CategoryConnection},
		{"connection failure", &pgconn.PgError{Code: "08006", Message: "connection failure"}, model.CategoryConnection},
		{"too many connections", &pgconn.PgError{Code: "53300", Message: "too many connections"}, model.CategoryConnection},
		{"admin shutdown", &pgconn.PgError{Code: "57P01", Message: "terminating connection"}, model.CategoryConnection},
		{"plain network error", errors.New("dial tcp: connection refused"), model.CategoryConnection},
		{"wrapped pg error", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42601", Message: "syntax error"}), model.CategorySyntaxOrSemantic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.Equal(t, tc.want, got.Category)
			assert.NotEmpty(t, got.Message)
			assert.ErrorIs(t, got, got.Err)
		})
	}
}

func TestClassifyAcquire(t *testing.T) {
	got := classifyAcquire(fmt.Errorf("wrapped: %w", pool.ErrCheckoutTimeout))
	assert.Equal(t, model.CategoryCheckoutTimeout, got.Category)

	got = classifyAcquire(fmt.Errorf("wrapped: %w", pool.ErrPoolCreation))
	assert.Equal(t, model.CategoryPoolCreation, got.Category)

	got = classifyAcquire(errors.New("dial tcp: i/o timeout"))
	assert.Equal(t, model.CategoryConnection, got.Category)
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2026-03-14T09:26:53Z", normalizeValue(ts))

	assert.Nil(t, normalizeValue(nil))
	assert.Equal(t, int64(42), normalizeValue(int64(42)))
	assert.Equal(t, "hello", normalizeValue("hello"))

	num := pgtype.Numeric{Int: bigInt(12345), Exp: -2, Valid: true}
	assert.InDelta(t, 123.45, normalizeValue(num), 0.0001)

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))

	uuidBytes := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", normalizeValue(uuidBytes))

	assert.Equal(t, `\xdeadbeef`, normalizeValue([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func bigInt(n int64) *big.Int { return big.NewInt(n) }

func TestExecutorErrorMessage(t *testing.T) {
	err := &Error{Category: model.CategorySyntaxOrSemantic, Message: "bad column"}
	assert.Equal(t, "syntax_or_semantic: bad column", err.Error())
}
