package directory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-gateway/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	calls   int
	tenants map[string]*model.TenantDescriptor
}

func (f *fakeStore) GetTenant(_ context.Context, key string) (*model.TenantDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.tenants[key]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *d
	return &cp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetTenantCachesWithinTTL(t *testing.T) {
	store := &fakeStore{tenants: map[string]*model.TenantDescriptor{
		"acme@example.com": {Key: "acme@example.com", Status: model.TenantActive},
	}}
	d := New(store, time.Minute, testLogger())

	for i := 0; i < 5; i++ {
		_, err := d.GetTenant(context.Background(), "acme@example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.calls)
}

func TestGetTenantRefreshesAfterTTL(t *testing.T) {
	store := &fakeStore{tenants: map[string]*model.TenantDescriptor{
		"acme@example.com": {Key: "acme@example.com", Status: model.TenantActive},
	}}
	d := New(store, time.Minute, testLogger())

	now := time.Now()
	d.now = func() time.Time { return now }

	_, err := d.GetTenant(context.Background(), "acme@example.com")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = d.GetTenant(context.Background(), "acme@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestGetTenantNotFound(t *testing.T) {
	d := New(&fakeStore{tenants: map[string]*model.TenantDescriptor{}}, time.Minute, testLogger())

	_, err := d.GetTenant(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestGetTenantSuspended(t *testing.T) {
	store := &fakeStore{tenants: map[string]*model.TenantDescriptor{
		"dormant@example.com": {Key: "dormant@example.com", Status: model.TenantSuspended},
	}}
	d := New(store, time.Minute, testLogger())

	_, err := d.GetTenant(context.Background(), "dormant@example.com")
	assert.ErrorIs(t, err, ErrTenantSuspended)
}

func TestInvalidateEvictsSingleKey(t *testing.T) {
	store := &fakeStore{tenants: map[string]*model.TenantDescriptor{
		"a@example.com": {Key: "a@example.com", Status: model.TenantActive},
		"b@example.com": {Key: "b@example.com", Status: model.TenantActive},
	}}
	d := New(store, time.Hour, testLogger())

	_, _ = d.GetTenant(context.Background(), "a@example.com")
	_, _ = d.GetTenant(context.Background(), "b@example.com")
	require.Equal(t, 2, store.calls)

	d.Invalidate("a@example.com")

	_, _ = d.GetTenant(context.Background(), "a@example.com")
	_, _ = d.GetTenant(context.Background(), "b@example.com")
	assert.Equal(t, 3, store.calls)
}
