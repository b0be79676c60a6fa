package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/snapshot"
)

type snapshotResponse struct {
	SnapshotID    int64     `json:"snapshot_id"`
	Database      string    `json:"database"`
	Table         string    `json:"table"`
	ObjectPath    string    `json:"object_path"`
	RowCount      int64     `json:"row_count"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

func toSnapshotResponse(item catalog.Snapshot) snapshotResponse {
	return snapshotResponse{
		SnapshotID:    item.SnapshotID,
		Database:      item.DatabaseName,
		Table:         item.TableName,
		ObjectPath:    item.ObjectPath,
		RowCount:      item.RowCount,
		FileSizeBytes: item.FileSizeBytes,
		CreatedBy:     item.CreatedBy,
		CreatedAt:     item.CreatedAt,
	}
}

func snapshotsAvailable(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Snapshots == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "snapshot export is not configured", true, nil)
		return false
	}
	return true
}

func handleListSnapshots(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok || !snapshotsAvailable(deps, w, r) {
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
	items, err := deps.Snapshots.List(r.Context(), tenantID, entry.Name, r.PathValue("table"), limit)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "SNAPSHOT_LIST_FAILED", "failed to list snapshots")
		return
	}
	response := make([]snapshotResponse, 0, len(items))
	for _, item := range items {
		response = append(response, toSnapshotResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": response})
}

func handleCreateSnapshot(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDataWriter)
	if !ok || !snapshotsAvailable(deps, w, r) {
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	created, err := deps.Snapshots.Create(r.Context(), snapshot.CreateInput{
		TenantID:  tenantID,
		Database:  entry.Name,
		Table:     r.PathValue("table"),
		CreatedBy: callerName(r),
	})
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "SNAPSHOT_CREATE_FAILED", "failed to export snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotResponse(created))
}

func handleQuerySnapshot(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok || !snapshotsAvailable(deps, w, r) {
		return
	}
	snapshotID, err := strconv.ParseInt(r.PathValue("snapshot"), 10, 64)
	if err != nil || snapshotID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SNAPSHOT_ID", "snapshot id must be a positive integer", false, nil)
		return
	}
	var request queryRequest
	if !decodeJSON(w, r, &request, "snapshot query") {
		return
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if query.Classify(sqlText) != query.KindRows {
		writeError(r.Context(), w, http.StatusBadRequest, "READ_ONLY", "snapshots only accept read statements", false, nil)
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}

	result, item, err := deps.Snapshots.Query(r.Context(), tenantID, snapshotID, sqlText, rowLimit(cfg, request.RowLimit))
	if item.SnapshotID != 0 && (item.DatabaseName != entry.Name || item.TableName != r.PathValue("table")) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "snapshot not found for this table", false, nil)
		return
	}
	if item.SnapshotID != 0 {
		recordQuery(r.Context(), deps, entry, catalog.InsertQueryLogInput{
			Source:  catalog.QuerySourceSnapshot,
			SQLText: sqlText,
		}, result, err)
	}
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "SNAPSHOT_QUERY_FAILED", "snapshot query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": toSnapshotResponse(item),
		"sql":      sqlText,
		"result":   toResultResponse(result),
	})
}
