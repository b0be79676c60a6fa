package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/maintenance"
	"github.com/tablecraft/tablecraft/internal/nl2sql"
	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/snapshot"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

type ReadinessCheck func(ctx context.Context) error

type SnapshotService interface {
	Create(ctx context.Context, in snapshot.CreateInput) (catalog.Snapshot, error)
	List(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]catalog.Snapshot, error)
	Query(ctx context.Context, tenantID string, snapshotID int64, sqlText string, rowLimit int) (query.Result, catalog.Snapshot, error)
	DeleteDatabaseObjects(ctx context.Context, tenantID, databaseName string) (int, error)
}

type SnapshotMaintenance interface {
	RunRetentionOnce(ctx context.Context, target maintenance.Target, keep int) (maintenance.RetentionSummary, error)
	RunIntegrityCheckOnce(ctx context.Context, target maintenance.Target) (maintenance.IntegritySummary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	Databases         *sqlitedb.Manager
	QueryEngine       query.Engine
	Snapshots         SnapshotService
	Maintenance       SnapshotMaintenance
	Translator        nl2sql.Translator
	UI                http.Handler
}

type route struct {
	pattern string
	handle  func(Dependencies, config.Config, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /v1/databases", handleListDatabases},
	{"POST /v1/databases", handleCreateDatabase},
	{"DELETE /v1/databases/{db}", handleDropDatabase},
	{"GET /v1/databases/{db}/tables", handleListTables},
	{"POST /v1/databases/{db}/tables", handleCreateTable},
	{"GET /v1/databases/{db}/tables/{table}", handleDescribeTable},
	{"DELETE /v1/databases/{db}/tables/{table}", handleDropTable},
	{"GET /v1/databases/{db}/tables/{table}/rows", handleSelectRows},
	{"POST /v1/databases/{db}/tables/{table}/rows", handleInsertRow},
	{"PATCH /v1/databases/{db}/tables/{table}/rows", handleUpdateRows},
	{"DELETE /v1/databases/{db}/tables/{table}/rows", handleDeleteRows},
	{"POST /v1/databases/{db}/query", handleQuery},
	{"POST /v1/databases/{db}/translate", handleTranslate},
	{"GET /v1/databases/{db}/history", handleHistory},
	{"GET /v1/databases/{db}/tables/{table}/snapshots", handleListSnapshots},
	{"POST /v1/databases/{db}/tables/{table}/snapshots", handleCreateSnapshot},
	{"POST /v1/databases/{db}/tables/{table}/snapshots/{snapshot}/query", handleQuerySnapshot},
	{"POST /v1/databases/{db}/tables/{table}/snapshots/prune", handlePruneSnapshots},
	{"GET /v1/databases/{db}/tables/{table}/snapshots/integrity", handleSnapshotIntegrity},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, item := range protectedRoutes {
		handle := item.handle
		protected.HandleFunc(item.pattern, func(w http.ResponseWriter, r *http.Request) {
			if cfg.HTTP.MaxBodyBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, cfg.HTTP.MaxBodyBytes)
			}
			handle(deps, cfg, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, item := range protectedRoutes {
		mux.Handle(item.pattern, protectedHandler)
	}
	if deps.UI != nil && cfg.UI.Enabled {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatabaseRoot fails when the database root directory is not usable.
func CheckDatabaseRoot(manager *sqlitedb.Manager) ReadinessCheck {
	return func(_ context.Context) error {
		if manager == nil {
			return errors.New("database manager is not configured")
		}
		if _, err := manager.Exists("readiness", "probe"); err != nil {
			return err
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
