package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tablecraft/tablecraft/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

const tenantHeader = "X-Tenant-ID"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller's API key to an Identity. A request that
// also names a tenant in X-Tenant-ID must name the key's own tenant.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				observability.ObserveAuthFailure("missing_key")
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				observability.ObserveAuthFailure("invalid_key")
				warn(logger, r, "authentication failed")
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}

			if requested := strings.TrimSpace(r.Header.Get(tenantHeader)); requested != "" && requested != identity.TenantID {
				observability.ObserveAuthFailure("tenant_mismatch")
				warn(logger, r, "tenant header does not match API key",
					slog.String("tenant_id", identity.TenantID),
					slog.String("requested_tenant", requested),
				)
				writeAuthError(w, r, http.StatusForbidden, "TENANT_MISMATCH", "API key does not belong to the requested tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func warn(logger *slog.Logger, r *http.Request, message string, attrs ...any) {
	if logger == nil {
		return
	}
	attrs = append(attrs,
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
	)
	logger.WarnContext(r.Context(), message, attrs...)
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
