// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const tenantKeyCtx contextKey = "tenant_key"

// Middleware resolves the caller's tenant key and injects it into the
// request context. With required=true a valid bearer token is mandatory;
// otherwise an X-Tenant-Key header is accepted for local setups without an
// auth front end.
func Middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				claims, err := ValidateToken(strings.TrimPrefix(header, "Bearer "))
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(withTenantKey(r.Context(), claims.TenantKey)))
				return
			}

			if !required {
				if key := r.Header.Get("X-Tenant-Key"); key != "" {
					next.ServeHTTP(w, r.WithContext(withTenantKey(r.Context(), key)))
					return
				}
			}

			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		})
	}
}

func withTenantKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, tenantKeyCtx, key)
}

// GetTenantKey extracts the tenant key from the request context.
func GetTenantKey(r *http.Request) string {
	if val := r.Context().Value(tenantKeyCtx); val != nil {
		return val.(string)
	}
	return ""
}
