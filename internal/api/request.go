package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/snapshot"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

func tenantFromRequest(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.TenantID) != "" {
			return identity.TenantID, nil
		}
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if tenantID == "" {
		return "", fmt.Errorf("tenant context is required")
	}
	return tenantID, nil
}

// requireRole passes when no identity is attached, which only happens when
// auth is disabled.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.Permits(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func callerName(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.TenantID
	}
	return "anonymous"
}

// authorize resolves the tenant and checks role, writing the error response
// itself when either fails.
func authorize(w http.ResponseWriter, r *http.Request, role string) (string, bool) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "TENANT_REQUIRED", err.Error(), false, nil)
		return "", false
	}
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	return tenantID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, what string) bool {
	return decodeBody(w, r, dst, what, false)
}

// decodeBody decodes a strict JSON body. With useNumber, numbers stay
// json.Number so integers survive the round trip into SQLite.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, what string, useNumber bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if useNumber {
		decoder.UseNumber()
	}
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds the configured limit", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return false
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid "+what+" request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return value, nil
}

func rowLimit(cfg config.Config, requested int) int {
	if requested <= 0 {
		return cfg.Databases.DefaultRowLimit
	}
	if cfg.Databases.MaxRowLimit > 0 && requested > cfg.Databases.MaxRowLimit {
		return cfg.Databases.MaxRowLimit
	}
	return requested
}

// writeStoreError maps storage sentinels onto the error envelope. Anything
// unrecognised is reported with fallbackStatus and fallbackCode.
func writeStoreError(ctx context.Context, w http.ResponseWriter, err error, fallbackStatus int, fallbackCode, fallbackMessage string) {
	switch {
	case errors.Is(err, sqlitedb.ErrDatabaseNotFound):
		writeError(ctx, w, http.StatusNotFound, "DATABASE_NOT_FOUND", "database not found", false, nil)
	case errors.Is(err, sqlitedb.ErrTableNotFound):
		writeError(ctx, w, http.StatusNotFound, "TABLE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, catalog.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", "resource not found", false, nil)
	case errors.Is(err, sqlitedb.ErrDatabaseExists), errors.Is(err, catalog.ErrAlreadyExists):
		writeError(ctx, w, http.StatusConflict, "ALREADY_EXISTS", "resource already exists", false, nil)
	case errors.Is(err, sqlitedb.ErrInvalidName):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_NAME", err.Error(), false, nil)
	case errors.Is(err, sqlitedb.ErrUnknownColumn):
		writeError(ctx, w, http.StatusBadRequest, "UNKNOWN_COLUMN", err.Error(), false, nil)
	case errors.Is(err, sqlitedb.ErrMissingFilter):
		writeError(ctx, w, http.StatusBadRequest, "FILTER_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, snapshot.ErrTooManyRows):
		writeError(ctx, w, http.StatusUnprocessableEntity, "SNAPSHOT_TOO_LARGE", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "operation timed out", true, nil)
	default:
		writeError(ctx, w, fallbackStatus, fallbackCode, fallbackMessage, fallbackStatus >= 500, map[string]any{"details": err.Error()})
	}
}

type resultResponse struct {
	Kind         query.Kind `json:"kind"`
	Columns      []string   `json:"columns,omitempty"`
	Rows         [][]any    `json:"rows,omitempty"`
	RowsAffected int64      `json:"rows_affected"`
	LastInsertID int64      `json:"last_insert_id,omitempty"`
	Stats        resultStat `json:"stats"`
}

type resultStat struct {
	RowCount     int   `json:"row_count"`
	DurationMs   int64 `json:"duration_ms"`
	ScannedFiles int   `json:"scanned_files,omitempty"`
	ScannedBytes int64 `json:"scanned_bytes,omitempty"`
}

func toResultResponse(result query.Result) resultResponse {
	rows := result.Rows
	if result.Kind == query.KindRows && rows == nil {
		rows = [][]any{}
	}
	return resultResponse{
		Kind:         result.Kind,
		Columns:      result.Columns,
		Rows:         rows,
		RowsAffected: result.RowsAffected,
		LastInsertID: result.LastInsertID,
		Stats: resultStat{
			RowCount:     len(result.Rows),
			DurationMs:   result.Duration.Milliseconds(),
			ScannedFiles: result.ScannedFiles,
			ScannedBytes: result.ScannedBytes,
		},
	}
}

// resultRowCount is what the history records: rows returned for reads,
// rows affected otherwise.
func resultRowCount(result query.Result) int64 {
	if result.Kind == query.KindRows {
		return int64(len(result.Rows))
	}
	return result.RowsAffected
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
