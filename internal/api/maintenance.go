package api

import (
	"errors"
	"net/http"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/maintenance"
)

type pruneRequest struct {
	Keep int `json:"keep"`
}

func maintenanceAvailable(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "snapshot maintenance is not configured", true, nil)
		return false
	}
	return true
}

func handlePruneSnapshots(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDBAdmin)
	if !ok || !maintenanceAvailable(deps, w, r) {
		return
	}
	var request pruneRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &request, "prune") {
		return
	}
	if request.Keep < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_KEEP", "keep must not be negative", false, nil)
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}

	target := maintenance.Target{TenantID: tenantID, Database: entry.Name, Table: r.PathValue("table")}
	summary, err := deps.Maintenance.RunRetentionOnce(r.Context(), target, request.Keep)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SNAPSHOT_PRUNE_FAILED", err.Error(), true, map[string]any{
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func handleSnapshotIntegrity(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok || !maintenanceAvailable(deps, w, r) {
		return
	}
	entry, _, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}

	target := maintenance.Target{TenantID: tenantID, Database: entry.Name, Table: r.PathValue("table")}
	summary, err := deps.Maintenance.RunIntegrityCheckOnce(r.Context(), target)
	if err != nil && !errors.Is(err, maintenance.ErrIntegrityIssues) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTEGRITY_CHECK_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": summary.Healthy(),
		"summary": summary,
	})
}
