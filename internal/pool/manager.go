// internal/pool/manager.go
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"sql-gateway/internal/metrics"
	"sql-gateway/internal/model"
)

var (
	// ErrCheckoutTimeout means every connection stayed busy past the wait
	// bound. Retryable at a higher level, never swallowed here.
	ErrCheckoutTimeout = errors.New("connection checkout timed out")

	// ErrPoolCreation wraps descriptor or dial failures while building a
	// tenant's pool. Not retried internally.
	ErrPoolCreation = errors.New("pool creation failed")
)

// Resolver supplies the connection descriptor for an unseen tenant key.
type Resolver interface {
	GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error)
}

type Config struct {
	MinConns        int
	MaxConns        int
	CheckoutTimeout time.Duration
	IdleTTL         time.Duration
}

// pgxPool is the slice of pgxpool.Pool the manager needs; tests substitute
// a fake through the newPool factory.
type pgxPool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

type entry struct {
	pool      pgxPool
	checkouts atomic.Int64
	lastUsed  atomic.Int64 // unix nanos
}

func (e *entry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

// Manager owns one bounded connection pool per tenant key. Pools are built
// lazily on first Acquire, deduplicated per key so concurrent first
// acquires never race two pools into existence, and torn down by a janitor
// once idle past the TTL. All pool mutation goes through here; no other
// component touches a raw connection outside a checkout scope.
type Manager struct {
	cfg      Config
	resolver Resolver
	logger   *slog.Logger

	mu    sync.RWMutex
	pools map[string]*entry
	group singleflight.Group

	newPool func(ctx context.Context, desc *model.TenantDescriptor) (pgxPool, error)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewManager(cfg Config, resolver Resolver, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger,
		pools:    make(map[string]*entry),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.newPool = m.openPool
	go m.janitor()
	return m
}

// Conn is a scoped checkout from a tenant's pool. Release is idempotent and
// must run on every exit path.
type Conn struct {
	pgx   *pgxpool.Conn
	entry *entry
	once  sync.Once
}

// Query runs a statement on the checked-out connection.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pgx.Query(ctx, sql, args...)
}

// Release hands the connection back to its pool.
func (c *Conn) Release() {
	c.once.Do(func() {
		if c.pgx != nil {
			c.pgx.Release()
		}
		c.entry.checkouts.Add(-1)
		c.entry.touch()
	})
}

// Acquire checks a connection out of the tenant's pool, creating the pool
// on first use. A checkout past MaxConns blocks until a connection frees up
// or the checkout timeout elapses.
func (m *Manager) Acquire(ctx context.Context, tenantKey string) (*Conn, error) {
	e := m.lookup(tenantKey)
	if e == nil {
		v, err, _ := m.group.Do(tenantKey, func() (any, error) {
			if existing := m.lookup(tenantKey); existing != nil {
				return existing, nil
			}
			return m.create(ctx, tenantKey)
		})
		if err != nil {
			return nil, err
		}
		e = v.(*entry)
	}

	acqCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckoutTimeout)
	defer cancel()

	conn, err := e.pool.Acquire(acqCtx)
	if err != nil {
		if acqCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w for tenant %s after %s", ErrCheckoutTimeout, tenantKey, m.cfg.CheckoutTimeout)
		}
		return nil, fmt.Errorf("checkout for tenant %s: %w", tenantKey, err)
	}

	e.checkouts.Add(1)
	e.touch()
	return &Conn{pgx: conn, entry: e}, nil
}

func (m *Manager) lookup(key string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pools[key]
}

func (m *Manager) create(ctx context.Context, tenantKey string) (*entry, error) {
	desc, err := m.resolver.GetTenant(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	p, err := m.newPool(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%w for tenant %s: %v", ErrPoolCreation, tenantKey, err)
	}

	e := &entry{pool: p}
	e.touch()

	m.mu.Lock()
	m.pools[tenantKey] = e
	m.mu.Unlock()

	metrics.PoolsActive.Inc()
	m.logger.Info("tenant pool created", "tenant", tenantKey, "max_conns", m.cfg.MaxConns)
	return e, nil
}

func (m *Manager) openPool(ctx context.Context, desc *model.TenantDescriptor) (pgxPool, error) {
	pc, err := pgxpool.ParseConfig(desc.DSN())
	if err != nil {
		return nil, err
	}
	pc.MinConns = int32(m.cfg.MinConns)
	pc.MaxConns = int32(m.cfg.MaxConns)
	pc.MaxConnIdleTime = m.cfg.IdleTTL

	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	// Fail at creation time for an unreachable target, not on first query.
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// janitor tears down pools with zero checkouts that have sat idle past the
// TTL. The next Acquire for that tenant recreates the pool transparently.
func (m *Manager) janitor() {
	defer close(m.done)

	interval := m.cfg.IdleTTL / 4
	if interval <= 0 || interval > 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTTL).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.pools {
		if e.checkouts.Load() == 0 && e.lastUsed.Load() < cutoff {
			e.pool.Close()
			delete(m.pools, key)
			metrics.PoolsActive.Dec()
			m.logger.Info("idle tenant pool evicted", "tenant", key)
		}
	}
}

// ActivePools reports how many tenant pools currently exist.
func (m *Manager) ActivePools() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Shutdown stops the janitor and drains every pool.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.pools {
		e.pool.Close()
		delete(m.pools, key)
		metrics.PoolsActive.Dec()
	}
	m.logger.Info("all tenant pools drained")
}
