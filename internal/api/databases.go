package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

type createDatabaseRequest struct {
	Name string `json:"name"`
}

type databaseResponse struct {
	DatabaseID int64     `json:"database_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDatabaseResponse(database catalog.Database) databaseResponse {
	return databaseResponse{
		DatabaseID: database.DatabaseID,
		Name:       database.Name,
		CreatedAt:  database.CreatedAt,
	}
}

func handleListDatabases(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog repository is not configured", true, nil)
		return
	}
	databases, err := deps.Catalog.ListDatabases(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_LIST_FAILED", "failed to list databases", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]databaseResponse, 0, len(databases))
	for _, database := range databases {
		items = append(items, toDatabaseResponse(database))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleCreateDatabase(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDBAdmin)
	if !ok {
		return
	}
	if deps.Catalog == nil || deps.Databases == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASES_UNAVAILABLE", "database management is not configured", true, nil)
		return
	}
	var request createDatabaseRequest
	if !decodeJSON(w, r, &request, "database") {
		return
	}

	database, err := deps.Databases.Create(r.Context(), tenantID, request.Name)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "DATABASE_CREATE_FAILED", "failed to create database")
		return
	}
	created, err := deps.Catalog.CreateDatabase(r.Context(), catalog.CreateDatabaseInput{
		TenantID: tenantID,
		Name:     database.Name(),
		FilePath: database.Path(),
	})
	if err != nil {
		if dropErr := deps.Databases.Drop(tenantID, database.Name()); dropErr != nil && deps.Logger != nil {
			deps.Logger.Error("failed to remove database file after catalog error", "tenant_id", tenantID, "database", database.Name(), "error", dropErr)
		}
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "DATABASE_CREATE_FAILED", "failed to register database")
		return
	}
	if deps.Logger != nil {
		deps.Logger.Info("database created", "tenant_id", tenantID, "database", created.Name)
	}
	writeJSON(w, http.StatusCreated, toDatabaseResponse(created))
}

// handleDropDatabase removes the catalog entry (cascading to tables,
// snapshots and history), the SQLite file and any exported snapshot files.
func handleDropDatabase(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleDBAdmin)
	if !ok {
		return
	}
	if deps.Catalog == nil || deps.Databases == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASES_UNAVAILABLE", "database management is not configured", true, nil)
		return
	}
	name := r.PathValue("db")
	if err := sqlitedb.ValidateName("database", name); err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "INVALID_NAME", "invalid database name")
		return
	}

	deletedEntry, err := deps.Catalog.DeleteDatabase(r.Context(), tenantID, name)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_DROP_FAILED", "failed to remove database from catalog", true, map[string]any{"details": err.Error()})
		return
	}
	deletedFile := true
	if err := deps.Databases.Drop(tenantID, name); err != nil {
		if !errors.Is(err, sqlitedb.ErrDatabaseNotFound) {
			writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_DROP_FAILED", "failed to remove database file", true, map[string]any{"details": err.Error()})
			return
		}
		deletedFile = false
	}
	if !deletedEntry && !deletedFile {
		writeError(r.Context(), w, http.StatusNotFound, "DATABASE_NOT_FOUND", "database not found", false, nil)
		return
	}

	removedObjects := 0
	if deps.Snapshots != nil {
		removedObjects, err = deps.Snapshots.DeleteDatabaseObjects(r.Context(), tenantID, name)
		if err != nil && deps.Logger != nil {
			deps.Logger.Warn("failed to remove snapshot objects", "tenant_id", tenantID, "database", name, "error", err)
		}
	}
	if deps.Logger != nil {
		deps.Logger.Info("database dropped", "tenant_id", tenantID, "database", name, "snapshot_objects", removedObjects)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":                     name,
		"dropped":                  true,
		"removed_snapshot_objects": removedObjects,
	})
}

// openDatabase loads the catalog entry and the SQLite handle for the {db}
// path segment. Both must exist.
func openDatabase(deps Dependencies, w http.ResponseWriter, r *http.Request, tenantID string) (catalog.Database, *sqlitedb.Database, bool) {
	if deps.Catalog == nil || deps.Databases == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASES_UNAVAILABLE", "database management is not configured", true, nil)
		return catalog.Database{}, nil, false
	}
	name := r.PathValue("db")
	if err := sqlitedb.ValidateName("database", name); err != nil {
		writeStoreError(r.Context(), w, err, http.StatusBadRequest, "INVALID_NAME", "invalid database name")
		return catalog.Database{}, nil, false
	}
	entry, err := deps.Catalog.GetDatabase(r.Context(), tenantID, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			err = sqlitedb.ErrDatabaseNotFound
		}
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "DATABASE_LOOKUP_FAILED", "failed to load database")
		return catalog.Database{}, nil, false
	}
	database, err := deps.Databases.Open(r.Context(), tenantID, name)
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "DATABASE_OPEN_FAILED", "failed to open database")
		return catalog.Database{}, nil, false
	}
	return entry, database, true
}
