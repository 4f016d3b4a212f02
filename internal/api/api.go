package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"sql-gateway/internal/config"
	"sql-gateway/internal/model"
	"sql-gateway/internal/session"
)

// QueryRunner is the correction-loop entry point the API fronts.
type QueryRunner interface {
	RunQuery(ctx context.Context, tenantKey string, req session.Request) *session.Response
}

// TenantResolver backs the schema endpoint.
type TenantResolver interface {
	GetTenant(ctx context.Context, key string) (*model.TenantDescriptor, error)
}

// Pinger reports admin-database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats exposes pool counts for the health endpoint.
type PoolStats interface {
	ActivePools() int
}

type API struct {
	Runner    QueryRunner
	Directory TenantResolver
	Admin     Pinger
	Pools     PoolStats
	Cfg       *config.Config
	Logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAPI(runner QueryRunner, dir TenantResolver, admin Pinger, pools PoolStats, cfg *config.Config, logger *slog.Logger) *API {
	return &API{
		Runner:    runner,
		Directory: dir,
		Admin:     admin,
		Pools:     pools,
		Cfg:       cfg,
		Logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-tenant request limiter, creating it on first use.
func (a *API) limiter(tenantKey string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[tenantKey]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.Cfg.RateLimit.PerSecond), a.Cfg.RateLimit.Burst)
		a.limiters[tenantKey] = l
	}
	return l
}
