package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sql-gateway/internal/auth"
	"sql-gateway/internal/metrics"
	"sql-gateway/internal/model"
	"sql-gateway/internal/session"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Public
	r.Get("/healthz", a.Health)
	r.Handle("/metrics", metrics.Handler())

	// Secured
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.Cfg.Auth.Required))
		r.Use(a.rateLimit)

		r.Post("/v1/query", a.RunQuery)
		r.Get("/v1/schema", a.Schema)
	})

	return r
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantKey := auth.GetTenantKey(r)
		if !a.limiter(tenantKey).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type queryRequest struct {
	Question string `json:"question,omitempty"`
	SQL      string `json:"sql,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Execute  *bool  `json:"execute,omitempty"`
}

// @Summary Run a natural-language or SQL query against the tenant's database
// @Tags Query
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body queryRequest true "Query request"
// @Success 200 {object} session.Response
// @Router /v1/query [post]
func (a *API) RunQuery(w http.ResponseWriter, r *http.Request) {
	tenantKey := auth.GetTenantKey(r)

	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if body.Question == "" && body.SQL == "" {
		http.Error(w, "either question or sql is required", http.StatusBadRequest)
		return
	}

	req := session.Request{
		Question: body.Question,
		SQL:      body.SQL,
		RowLimit: body.Limit,
		DryRun:   body.Execute != nil && !*body.Execute,
	}

	resp := a.Runner.RunQuery(r.Context(), tenantKey, req)

	a.Logger.Info("query handled",
		"tenant", tenantKey, "status", resp.Status,
		"attempts", len(resp.Attempts), "elapsed_ms", resp.ElapsedMs)

	writeJSON(w, statusFor(resp), resp)
}

// @Summary Fetch the tenant's stored schema catalog
// @Tags Schema
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/schema [get]
func (a *API) Schema(w http.ResponseWriter, r *http.Request) {
	tenantKey := auth.GetTenantKey(r)

	desc, err := a.Directory.GetTenant(r.Context(), tenantKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_key":     desc.Key,
		"schema":         desc.Catalog,
		"catalog_length": len(desc.Catalog),
		"database_info": map[string]any{
			"host":    desc.Host,
			"port":    desc.Port,
			"db_name": desc.Database,
		},
	})
}

// @Summary Gateway health
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /healthz [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	adminStatus := "healthy"
	status := http.StatusOK
	if err := a.Admin.Ping(ctx); err != nil {
		adminStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":              adminStatus,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"admin_database":      adminStatus,
		"active_tenant_pools": a.Pools.ActivePools(),
		"configuration": map[string]any{
			"max_result_rows": a.Cfg.Query.MaxResultRows,
			"query_timeout":   a.Cfg.Query.Timeout.String(),
			"max_retries":     a.Cfg.Query.MaxRetries,
		},
	})
}

// statusFor maps the terminal error category onto an HTTP status.
func statusFor(resp *session.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorCategory {
	case model.CategoryGuardRejection:
		return http.StatusBadRequest
	case model.CategoryTenantNotFound:
		return http.StatusNotFound
	case model.CategoryTenantSuspended:
		return http.StatusForbidden
	case model.CategoryTimeout, model.CategoryCheckoutTimeout:
		return http.StatusGatewayTimeout
	case model.CategoryRetryExhausted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
