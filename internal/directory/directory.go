// internal/directory/directory.go
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sql-gateway/internal/model"
	"sql-gateway/internal/storage"
)

// ErrTenantNotFound mirrors the store's miss so callers only import this
// package.
var ErrTenantNotFound = storage.ErrTenantNotFound

// ErrTenantSuspended is returned for tenants whose record exists but whose
// status is not active.
var ErrTenantSuspended = errors.New("tenant suspended")

// Store is the admin-database lookup the directory caches over.
type Store interface {
	GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error)
}

// Directory resolves tenant keys to connection descriptors through a
// read-through cache with a short TTL. Reads are concurrent; a tenant
// change invalidates only that key.
type Directory struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]entry

	now func() time.Time
}

type entry struct {
	desc    *model.TenantDescriptor
	expires time.Time
}

func New(store Store, ttl time.Duration, logger *slog.Logger) *Directory {
	return &Directory{
		store:  store,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]entry),
		now:    time.Now,
	}
}

// GetTenant returns the descriptor for an active tenant, from cache when
// fresh. Suspended tenants resolve but are rejected here so no pool is ever
// built for them.
func (d *Directory) GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error) {
	d.mu.RLock()
	e, ok := d.cache[key]
	d.mu.RUnlock()

	if !ok || d.now().After(e.expires) {
		desc, err := d.store.GetTenant(ctx, key)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.cache[key] = entry{desc: desc, expires: d.now().Add(d.ttl)}
		d.mu.Unlock()
		e = entry{desc: desc}
	}

	if e.desc.Status != model.TenantActive {
		return nil, fmt.Errorf("%w: %s", ErrTenantSuspended, key)
	}
	return e.desc, nil
}

// Invalidate evicts one tenant's cached descriptor, e.g. after the
// onboarding flow reports a change.
func (d *Directory) Invalidate(key string) {
	d.mu.Lock()
	delete(d.cache, key)
	d.mu.Unlock()
	d.logger.Debug("directory entry invalidated", "tenant", key)
}
