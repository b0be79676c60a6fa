package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/query"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit,omitempty"`
}

// statementRole is the role a statement needs: reads for row statements,
// writes for everything else.
func statementRole(sqlText string) string {
	if query.Classify(sqlText) == query.KindRows {
		return auth.RoleQueryReader
	}
	return auth.RoleDataWriter
}

func handleQuery(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	var request queryRequest
	if !decodeJSON(w, r, &request, "query") {
		return
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if err := requireRole(r, statementRole(sqlText)); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_ENGINE_UNAVAILABLE", "query engine is not configured", true, nil)
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}

	result, err := runStatement(r.Context(), deps, cfg, tenantID, entry, sqlText, request.RowLimit)
	recordQuery(r.Context(), deps, entry, catalog.InsertQueryLogInput{
		Source:  catalog.QuerySourceSQL,
		SQLText: sqlText,
	}, result, err)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "QUERY_FAILED", "statement failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": entry.Name,
		"sql":      sqlText,
		"result":   toResultResponse(result),
	})
}

func runStatement(ctx context.Context, deps Dependencies, cfg config.Config, tenantID string, entry catalog.Database, sqlText string, requestedLimit int) (query.Result, error) {
	return deps.QueryEngine.Execute(ctx, query.Request{
		TenantID: tenantID,
		Database: entry.Name,
		SQL:      sqlText,
		RowLimit: rowLimit(cfg, requestedLimit),
	})
}

// recordQuery appends to the statement history. Failures are logged and
// never fail the request.
func recordQuery(ctx context.Context, deps Dependencies, entry catalog.Database, in catalog.InsertQueryLogInput, result query.Result, execErr error) {
	if deps.Catalog == nil {
		return
	}
	in.DatabaseID = entry.DatabaseID
	in.Status = "ok"
	if execErr != nil {
		in.Status = "error"
		in.ErrorMessage = execErr.Error()
	} else {
		in.RowCount = resultRowCount(result)
		in.DurationMs = result.Duration.Milliseconds()
	}
	if _, err := deps.Catalog.InsertQueryLog(ctx, in); err != nil && deps.Logger != nil {
		deps.Logger.Warn("failed to record query history", "tenant_id", entry.TenantID, "database", entry.Name, "error", err)
	}
}

type historyEntryResponse struct {
	QueryID      int64               `json:"query_id"`
	Source       catalog.QuerySource `json:"source"`
	Prompt       string              `json:"prompt,omitempty"`
	SQL          string              `json:"sql"`
	Rule         string              `json:"rule,omitempty"`
	Status       string              `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	RowCount     int64               `json:"row_count"`
	DurationMs   int64               `json:"duration_ms"`
	CreatedAt    time.Time           `json:"created_at"`
}

func handleHistory(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	entries, err := deps.Catalog.ListQueryLog(r.Context(), tenantID, entry.Name, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_LIST_FAILED", "failed to list query history", true, map[string]any{"details": err.Error()})
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	items := make([]historyEntryResponse, 0, len(entries))
	for _, logEntry := range entries {
		if source != "" && string(logEntry.Source) != source {
			continue
		}
		items = append(items, historyEntryResponse{
			QueryID:      logEntry.QueryID,
			Source:       logEntry.Source,
			Prompt:       logEntry.Prompt,
			SQL:          logEntry.SQLText,
			Rule:         logEntry.Rule,
			Status:       logEntry.Status,
			ErrorMessage: logEntry.ErrorMessage,
			RowCount:     logEntry.RowCount,
			DurationMs:   logEntry.DurationMs,
			CreatedAt:    logEntry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"database": entry.Name, "items": items})
}
