package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
)

type contextKey string

const CtxCaller contextKey = "caller"

// CallerFrom returns the authenticated caller stored by AuthMiddleware.
func CallerFrom(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(CtxCaller).(domain.Caller)
	return caller, ok && caller.TenantID != ""
}

func AuthMiddleware(repo ports.APIKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid authorization header", Code: "UNAUTHORIZED"})
				return
			}

			key := strings.TrimPrefix(authHeader, "Bearer ")
			apiKey, err := repo.GetAPIKeyByHash(r.Context(), domain.HashAPIKey(key))
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				writeError(w, err)
				return
			}

			if apiKey == nil || !apiKey.Active {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or inactive API key", Code: "UNAUTHORIZED"})
				return
			}

			if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(time.Now()) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "API key expired", Code: "UNAUTHORIZED"})
				return
			}

			ctx := context.WithValue(r.Context(), CtxCaller, domain.Caller{TenantID: apiKey.TenantID, Role: apiKey.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "role not found in context", Code: "FORBIDDEN"})
				return
			}

			allowed := false
			for _, role := range roles {
				if role == caller.Role {
					allowed = true
					break
				}
			}

			if !allowed {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "insufficient permissions", Code: "FORBIDDEN"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
