package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablecraft/tablecraft/internal/api"
	"github.com/tablecraft/tablecraft/internal/api/uistatic"
	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/catalog/sqlstore"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/maintenance"
	"github.com/tablecraft/tablecraft/internal/migrations"
	"github.com/tablecraft/tablecraft/internal/nl2sql"
	"github.com/tablecraft/tablecraft/internal/nl2sql/pattern"
	"github.com/tablecraft/tablecraft/internal/observability"
	duckdbengine "github.com/tablecraft/tablecraft/internal/query/duckdb"
	sqliteengine "github.com/tablecraft/tablecraft/internal/query/sqlite"
	"github.com/tablecraft/tablecraft/internal/snapshot"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
	"github.com/tablecraft/tablecraft/internal/storage"
	"github.com/tablecraft/tablecraft/internal/storage/localfs"
	s3store "github.com/tablecraft/tablecraft/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tablecraft-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := catalog.ParseDialect(cfg.Catalog.Driver)
	if err != nil {
		logger.Error("invalid catalog driver", slog.Any("error", err))
		os.Exit(1)
	}
	catalogDB, err := sqlstore.Open(context.Background(), sqlstore.DBConfig{
		Dialect:         dialect,
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		BusyTimeout:     cfg.Databases.BusyTimeout,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	if cfg.Catalog.AutoMigrate {
		applied, err := migrations.NewRunner(dialect).Up(context.Background(), catalogDB, 0)
		if err != nil {
			logger.Error("failed to migrate catalog", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("catalog migrations applied", slog.Int("count", applied))
	}
	catalogRepo := sqlstore.NewRepository(catalogDB, dialect)

	databases, err := sqlitedb.NewManager(sqlitedb.Config{
		RootDir:       cfg.Databases.RootDir,
		FileExtension: cfg.Databases.FileExtension,
		BusyTimeout:   cfg.Databases.BusyTimeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to initialize database manager", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = databases.Close() }()

	objectStore, err := openObjectStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	snapshots := &snapshot.Service{
		Catalog:     catalogRepo,
		Databases:   databases,
		ObjectStore: objectStore,
		Engine:      duckdbengine.NewEngine(objectStore),
		Config: snapshot.Config{
			MaxRows:      cfg.Snapshots.MaxRows,
			QueryTimeout: cfg.Snapshots.QueryTimeout,
		},
		Logger: logger,
	}

	upkeep := &maintenance.Service{
		Catalog:     catalogRepo,
		ObjectStore: objectStore,
		Config: maintenance.Config{
			KeepSnapshots:          cfg.Snapshots.KeepSnapshots,
			IntegritySnapshotLimit: cfg.Snapshots.IntegrityLimit,
		},
		Logger: logger,
	}

	translator, err := newTranslator(cfg)
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:      logger,
		Catalog:     catalogRepo,
		Databases:   databases,
		QueryEngine: sqliteengine.NewEngine(databases),
		Snapshots:   snapshots,
		Maintenance: upkeep,
		Translator:  translator,
		UI:          uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckDatabaseRoot(databases),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("catalog_driver", string(dialect)),
			slog.String("translate_provider", cfg.Translate.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openObjectStore picks S3 when enabled and the local snapshot directory
// otherwise.
func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if !cfg.ObjectStore.Enabled {
		return localfs.New(cfg.ObjectStore.LocalDir)
	}
	return s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
}

func newTranslator(cfg config.Config) (nl2sql.Translator, error) {
	if cfg.Translate.Provider != config.TranslateProviderOpenAI {
		return pattern.NewTranslator(), nil
	}
	return nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.Translate.BaseURL,
		APIKey:      cfg.Translate.APIKey,
		Model:       cfg.Translate.Model,
		Temperature: cfg.Translate.Temperature,
		Timeout:     cfg.Translate.Timeout,
	})
}
