package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-gateway/internal/model"
)

type fakeResolver struct {
	calls   atomic.Int64
	missing bool
}

func (r *fakeResolver) GetTenant(_ context.Context, key string) (*model.TenantDescriptor, error) {
	r.calls.Add(1)
	if r.missing {
		return nil, errors.New("tenant not found")
	}
	return &model.TenantDescriptor{
		Key: key, Host: "localhost", Port: 5432,
		User: "u", Password: "p", Database: "d",
		Status: model.TenantActive,
	}, nil
}

type fakePool struct {
	closed atomic.Bool
}

func (f *fakePool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if f.closed.Load() {
		return nil, errors.New("closed pool")
	}
	return nil, nil
}

func (f *fakePool) Close() { f.closed.Store(true) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, resolver Resolver) (*Manager, *atomic.Int64) {
	t.Helper()
	m := NewManager(Config{
		MinConns:        1,
		MaxConns:        5,
		CheckoutTimeout: time.Second,
		IdleTTL:         time.Hour,
	}, resolver, testLogger())
	t.Cleanup(m.Shutdown)

	created := &atomic.Int64{}
	m.newPool = func(context.Context, *model.TenantDescriptor) (pgxPool, error) {
		created.Add(1)
		return &fakePool{}, nil
	}
	return m, created
}

func TestAcquireCreatesPoolOnce(t *testing.T) {
	m, created := newTestManager(t, &fakeResolver{})

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := m.Acquire(context.Background(), "acme@example.com")
			errs[i] = err
			if err == nil {
				conn.Release()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), created.Load(), "concurrent first acquires must build exactly one pool")
	assert.Equal(t, 1, m.ActivePools())
}

func TestAcquireDistinctTenantsGetDistinctPools(t *testing.T) {
	m, created := newTestManager(t, &fakeResolver{})

	for _, key := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		conn, err := m.Acquire(context.Background(), key)
		require.NoError(t, err)
		conn.Release()
	}
	assert.Equal(t, int64(3), created.Load())
	assert.Equal(t, 3, m.ActivePools())
}

func TestAcquireSurfacesResolverFailure(t *testing.T) {
	m, created := newTestManager(t, &fakeResolver{missing: true})

	_, err := m.Acquire(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.Equal(t, int64(0), created.Load())
	assert.Equal(t, 0, m.ActivePools())
}

func TestAcquireSurfacesPoolCreationFailure(t *testing.T) {
	m, _ := newTestManager(t, &fakeResolver{})
	m.newPool = func(context.Context, *model.TenantDescriptor) (pgxPool, error) {
		return nil, errors.New("connection refused")
	}

	_, err := m.Acquire(context.Background(), "acme@example.com")
	require.ErrorIs(t, err, ErrPoolCreation)

	// A later acquire retries creation rather than caching the failure.
	m.newPool = func(context.Context, *model.TenantDescriptor) (pgxPool, error) {
		return &fakePool{}, nil
	}
	conn, err := m.Acquire(context.Background(), "acme@example.com")
	require.NoError(t, err)
	conn.Release()
}

func TestEvictIdleTearsDownAndRecreates(t *testing.T) {
	m, created := newTestManager(t, &fakeResolver{})
	m.cfg.IdleTTL = 10 * time.Millisecond

	conn, err := m.Acquire(context.Background(), "acme@example.com")
	require.NoError(t, err)
	conn.Release()

	time.Sleep(30 * time.Millisecond)
	m.evictIdle()
	assert.Equal(t, 0, m.ActivePools())

	// Transparent recreation on next acquire.
	conn, err = m.Acquire(context.Background(), "acme@example.com")
	require.NoError(t, err)
	conn.Release()
	assert.Equal(t, int64(2), created.Load())
}

func TestEvictIdleSkipsCheckedOutPools(t *testing.T) {
	m, _ := newTestManager(t, &fakeResolver{})
	m.cfg.IdleTTL = time.Nanosecond

	conn, err := m.Acquire(context.Background(), "acme@example.com")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	m.evictIdle()
	assert.Equal(t, 1, m.ActivePools(), "pool with live checkout must not be evicted")

	conn.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, &fakeResolver{})

	conn, err := m.Acquire(context.Background(), "acme@example.com")
	require.NoError(t, err)

	conn.Release()
	conn.Release()

	e := m.lookup("acme@example.com")
	require.NotNil(t, e)
	assert.Equal(t, int64(0), e.checkouts.Load())
}

func TestShutdownDrainsAllPools(t *testing.T) {
	m, _ := newTestManager(t, &fakeResolver{})

	for _, key := range []string{"a@example.com", "b@example.com"} {
		conn, err := m.Acquire(context.Background(), key)
		require.NoError(t, err)
		conn.Release()
	}

	m.Shutdown()
	assert.Equal(t, 0, m.ActivePools())
}
