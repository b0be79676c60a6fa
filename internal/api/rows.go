package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

const wherePrefix = "where."

type insertRowRequest struct {
	Values map[string]any `json:"values"`
}

type updateRowsRequest struct {
	Set   map[string]any `json:"set"`
	Where map[string]any `json:"where"`
}

type deleteRowsRequest struct {
	Where map[string]any `json:"where"`
}

// handleSelectRows pages through a table. Equality filters are passed as
// where.<column>=<value> query parameters.
func handleSelectRows(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_OFFSET", err.Error(), false, nil)
		return
	}
	desc := false
	if raw := r.URL.Query().Get("desc"); raw != "" {
		desc, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ORDER", "desc must be a boolean", false, nil)
			return
		}
	}
	where := sqlitedb.Values{}
	for key, values := range r.URL.Query() {
		if column, found := strings.CutPrefix(key, wherePrefix); found && len(values) > 0 {
			where[column] = values[0]
		}
	}

	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	table := r.PathValue("table")
	result, err := database.SelectRows(r.Context(), table, sqlitedb.SelectOptions{
		Limit:   rowLimit(cfg, limit),
		Offset:  offset,
		OrderBy: strings.TrimSpace(r.URL.Query().Get("order_by")),
		Desc:    desc,
		Where:   where,
	})
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "ROW_SELECT_FAILED", "failed to read rows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": entry.Name,
		"table":    table,
		"result":   toResultResponse(result),
	})
}

func handleInsertRow(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDataWriter)
	if !ok {
		return
	}
	var request insertRowRequest
	if !decodeBody(w, r, &request, "insert", true) {
		return
	}
	_, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	change, err := database.InsertRow(r.Context(), r.PathValue("table"), rowValues(request.Values))
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "ROW_INSERT_FAILED", "failed to insert row")
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func handleUpdateRows(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDataWriter)
	if !ok {
		return
	}
	var request updateRowsRequest
	if !decodeBody(w, r, &request, "update", true) {
		return
	}
	if len(request.Set) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "VALUES_REQUIRED", "at least one column must be set", false, nil)
		return
	}
	_, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	change, err := database.UpdateRows(r.Context(), r.PathValue("table"), rowValues(request.Set), rowValues(request.Where))
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "ROW_UPDATE_FAILED", "failed to update rows")
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func handleDeleteRows(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDataWriter)
	if !ok {
		return
	}
	var request deleteRowsRequest
	if !decodeBody(w, r, &request, "delete", true) {
		return
	}
	_, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	change, err := database.DeleteRows(r.Context(), r.PathValue("table"), rowValues(request.Where))
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "ROW_DELETE_FAILED", "failed to delete rows")
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// rowValues turns decoded JSON into bindable values: integral numbers become
// int64, other numbers float64, nested documents their JSON text.
func rowValues(raw map[string]any) sqlitedb.Values {
	values := make(sqlitedb.Values, len(raw))
	for name, value := range raw {
		switch typed := value.(type) {
		case json.Number:
			if integer, err := typed.Int64(); err == nil {
				values[name] = integer
			} else if float, err := typed.Float64(); err == nil {
				values[name] = float
			} else {
				values[name] = typed.String()
			}
		case map[string]any, []any:
			encoded, err := json.Marshal(typed)
			if err != nil {
				values[name] = nil
				continue
			}
			values[name] = string(encoded)
		default:
			values[name] = typed
		}
	}
	return values
}
