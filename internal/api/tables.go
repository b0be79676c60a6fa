package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

type createTableRequest struct {
	Name    string                `json:"name"`
	Columns []sqlitedb.ColumnSpec `json:"columns"`
}

func handleListTables(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	tables, err := database.ListTables(r.Context())
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_LIST_FAILED", "failed to list tables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"database": entry.Name, "items": tables})
}

func handleCreateTable(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDBAdmin)
	if !ok {
		return
	}
	var request createTableRequest
	if !decodeJSON(w, r, &request, "table") {
		return
	}
	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	if _, err := sqlitedb.CreateTableSQL(request.Name, request.Columns); err != nil {
		if errors.Is(err, sqlitedb.ErrInvalidName) {
			writeStoreError(r.Context(), w, err, http.StatusBadRequest, "INVALID_NAME", "invalid name")
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SCHEMA", err.Error(), false, nil)
		return
	}
	if _, err := database.DescribeTable(r.Context(), request.Name); err == nil {
		writeError(r.Context(), w, http.StatusConflict, "ALREADY_EXISTS", "table already exists", false, map[string]any{"table": request.Name})
		return
	} else if !errors.Is(err, sqlitedb.ErrTableNotFound) {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_CREATE_FAILED", "failed to inspect table")
		return
	}

	if err := database.CreateTable(r.Context(), request.Name, request.Columns); err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_CREATE_FAILED", "failed to create table")
		return
	}
	columnsJSON, err := json.Marshal(request.Columns)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TABLE_CREATE_FAILED", "failed to encode columns", false, nil)
		return
	}
	table, err := deps.Catalog.CreateTable(r.Context(), catalog.CreateTableInput{
		DatabaseID:  entry.DatabaseID,
		TableName:   request.Name,
		ColumnsJSON: columnsJSON,
	})
	switch {
	case errors.Is(err, catalog.ErrAlreadyExists):
		// A stale entry from a table dropped through raw SQL; the new table
		// reuses it.
		table, err = deps.Catalog.GetTableByName(r.Context(), tenantID, entry.Name, request.Name)
	case err != nil:
		if dropErr := database.DropTable(r.Context(), request.Name); dropErr != nil && deps.Logger != nil {
			deps.Logger.Error("failed to drop table after catalog error", "tenant_id", tenantID, "database", entry.Name, "table", request.Name, "error", dropErr)
		}
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TABLE_CREATE_FAILED", "failed to register table", true, map[string]any{"details": err.Error()})
		return
	}

	columns, err := database.DescribeTable(r.Context(), request.Name)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_CREATE_FAILED", "failed to describe table")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"table_id":   table.TableID,
		"database":   entry.Name,
		"name":       request.Name,
		"columns":    columns,
		"created_at": table.CreatedAt,
	})
}

func handleDescribeTable(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	name := r.PathValue("table")
	columns, err := database.DescribeTable(r.Context(), name)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_DESCRIBE_FAILED", "failed to describe table")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": entry.Name,
		"name":     name,
		"columns":  columns,
	})
}

func handleDropTable(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDBAdmin)
	if !ok {
		return
	}
	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}
	name := r.PathValue("table")
	if err := database.DropTable(r.Context(), name); err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TABLE_DROP_FAILED", "failed to drop table")
		return
	}
	if _, err := deps.Catalog.DeleteTableByName(r.Context(), tenantID, entry.Name, name); err != nil && deps.Logger != nil {
		deps.Logger.Warn("failed to remove table from catalog", "tenant_id", tenantID, "database", entry.Name, "table", name, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"database": entry.Name, "name": name, "dropped": true})
}
