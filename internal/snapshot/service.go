package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
	"github.com/tablecraft/tablecraft/internal/storage"
)

var ErrTooManyRows = errors.New("snapshot: table exceeds the snapshot row limit")

// Catalog is the slice of catalog.Repository the snapshot service needs.
type Catalog interface {
	GetDatabase(ctx context.Context, tenantID, name string) (catalog.Database, error)
	CreateTable(ctx context.Context, in catalog.CreateTableInput) (catalog.TableDef, error)
	GetTableByName(ctx context.Context, tenantID, databaseName, tableName string) (catalog.TableDef, error)
	CreateSnapshot(ctx context.Context, in catalog.CreateSnapshotInput) (catalog.Snapshot, error)
	ListSnapshots(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]catalog.Snapshot, error)
	GetSnapshotByID(ctx context.Context, tenantID string, snapshotID int64) (catalog.Snapshot, error)
}

type Config struct {
	MaxRows      int
	QueryTimeout time.Duration
}

type Service struct {
	Catalog     Catalog
	Databases   *sqlitedb.Manager
	ObjectStore storage.ObjectStore
	Engine      query.Engine
	Config      Config
	Logger      *slog.Logger
	NewID       func() (uuid.UUID, error)
}

type CreateInput struct {
	TenantID  string
	Database  string
	Table     string
	CreatedBy string
}

// Create exports the current rows of a table to the object store and
// records the snapshot in the catalog.
func (s *Service) Create(ctx context.Context, in CreateInput) (catalog.Snapshot, error) {
	database, err := s.Databases.Open(ctx, in.TenantID, in.Database)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	table, err := s.tableDef(ctx, database, in)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	rows, err := database.SelectRows(ctx, in.Table, sqlitedb.SelectOptions{Limit: s.maxRows() + 1})
	if err != nil {
		return catalog.Snapshot{}, err
	}
	if len(rows.Rows) > s.maxRows() {
		return catalog.Snapshot{}, fmt.Errorf("%w (%d)", ErrTooManyRows, s.maxRows())
	}
	encoded, err := encodeRows(rows.Columns, rows.Rows)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	id, err := s.newID()
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("allocate snapshot id: %w", err)
	}
	objectPath, err := storage.BuildSnapshotPath(in.TenantID, in.Database, table.TableName, id)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	info, err := s.ObjectStore.Put(ctx, objectPath, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata: map[string]string{
			"tablecraft-tenant": in.TenantID,
			"tablecraft-table":  in.Database + "." + table.TableName,
			"tablecraft-rows":   strconv.FormatInt(encoded.RowCount, 10),
		},
	})
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("upload snapshot: %w", err)
	}

	snapshot, err := s.Catalog.CreateSnapshot(ctx, catalog.CreateSnapshotInput{
		TableID:       table.TableID,
		ObjectPath:    objectPath,
		RowCount:      encoded.RowCount,
		FileSizeBytes: info.Size,
		CreatedBy:     in.CreatedBy,
	})
	if err != nil {
		if deleteErr := s.ObjectStore.Delete(ctx, objectPath); deleteErr != nil {
			s.logger().Warn("failed to remove orphaned snapshot object", slog.String("object_path", objectPath), slog.Any("error", deleteErr))
		}
		return catalog.Snapshot{}, err
	}
	snapshot.TenantID = in.TenantID
	snapshot.DatabaseName = in.Database
	snapshot.TableName = table.TableName

	observability.ObserveSnapshotExport(encoded.RowCount)
	s.logger().Info("snapshot created",
		slog.String("tenant_id", in.TenantID),
		slog.String("database", in.Database),
		slog.String("table", table.TableName),
		slog.Int64("snapshot_id", snapshot.SnapshotID),
		slog.Int64("row_count", encoded.RowCount),
	)
	return snapshot, nil
}

// tableDef returns the catalog entry for the table, registering tables that
// were created through raw SQL and so never reached the catalog.
func (s *Service) tableDef(ctx context.Context, database *sqlitedb.Database, in CreateInput) (catalog.TableDef, error) {
	table, err := s.Catalog.GetTableByName(ctx, in.TenantID, in.Database, in.Table)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.TableDef{}, err
	}

	columns, err := database.DescribeTable(ctx, in.Table)
	if err != nil {
		return catalog.TableDef{}, err
	}
	databaseDef, err := s.Catalog.GetDatabase(ctx, in.TenantID, in.Database)
	if err != nil {
		return catalog.TableDef{}, err
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return catalog.TableDef{}, fmt.Errorf("encode columns: %w", err)
	}
	table, err = s.Catalog.CreateTable(ctx, catalog.CreateTableInput{
		DatabaseID:  databaseDef.DatabaseID,
		TableName:   in.Table,
		ColumnsJSON: columnsJSON,
	})
	if errors.Is(err, catalog.ErrAlreadyExists) {
		return s.Catalog.GetTableByName(ctx, in.TenantID, in.Database, in.Table)
	}
	return table, err
}

func (s *Service) List(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]catalog.Snapshot, error) {
	return s.Catalog.ListSnapshots(ctx, tenantID, databaseName, tableName, limit)
}

// Query runs a read-only statement against one snapshot. The snapshot is
// exposed as a view named after its table with columns row_number and
// row_json.
func (s *Service) Query(ctx context.Context, tenantID string, snapshotID int64, sqlText string, rowLimit int) (query.Result, catalog.Snapshot, error) {
	snapshot, err := s.Catalog.GetSnapshotByID(ctx, tenantID, snapshotID)
	if err != nil {
		return query.Result{}, catalog.Snapshot{}, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	result, err := s.Engine.Execute(queryCtx, query.Request{
		TenantID: tenantID,
		Database: snapshot.DatabaseName,
		SQL:      sqlText,
		RowLimit: rowLimit,
		Files: []query.TableFile{{
			TableName:     snapshot.TableName,
			ObjectPath:    snapshot.ObjectPath,
			FileSizeBytes: snapshot.FileSizeBytes,
		}},
	})
	if err != nil {
		return query.Result{}, snapshot, err
	}
	return result, snapshot, nil
}

// DeleteDatabaseObjects removes every snapshot file stored for a database.
func (s *Service) DeleteDatabaseObjects(ctx context.Context, tenantID, databaseName string) (int, error) {
	prefix, err := storage.BuildDatabasePrefix(tenantID, databaseName)
	if err != nil {
		return 0, err
	}
	return storage.DeletePrefix(ctx, s.ObjectStore, prefix)
}

func (s *Service) maxRows() int {
	if s.Config.MaxRows <= 0 {
		return 100000
	}
	return s.Config.MaxRows
}

func (s *Service) queryTimeout() time.Duration {
	if s.Config.QueryTimeout <= 0 {
		return 30 * time.Second
	}
	return s.Config.QueryTimeout
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) newID() (uuid.UUID, error) {
	if s.NewID == nil {
		return uuid.NewV7()
	}
	return s.NewID()
}
