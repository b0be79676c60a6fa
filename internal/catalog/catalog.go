package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
)

// Repository is the metadata bookkeeping store. It records which databases,
// tables and snapshots exist per tenant and keeps the statement history; the
// user data itself lives in the SQLite files managed by sqlitedb.
type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateDatabase(ctx context.Context, in CreateDatabaseInput) (Database, error)
	GetDatabase(ctx context.Context, tenantID, name string) (Database, error)
	ListDatabases(ctx context.Context, tenantID string) ([]Database, error)
	DeleteDatabase(ctx context.Context, tenantID, name string) (bool, error)
	CreateTable(ctx context.Context, in CreateTableInput) (TableDef, error)
	GetTableByName(ctx context.Context, tenantID, databaseName, tableName string) (TableDef, error)
	ListTables(ctx context.Context, tenantID, databaseName string) ([]TableDef, error)
	DeleteTableByName(ctx context.Context, tenantID, databaseName, tableName string) (bool, error)
	CreateSnapshot(ctx context.Context, in CreateSnapshotInput) (Snapshot, error)
	ListSnapshots(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]Snapshot, error)
	GetSnapshotByID(ctx context.Context, tenantID string, snapshotID int64) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, tenantID string, snapshotID int64) (bool, error)
	InsertQueryLog(ctx context.Context, in InsertQueryLogInput) (QueryLogEntry, error)
	ListQueryLog(ctx context.Context, tenantID, databaseName string, limit int) ([]QueryLogEntry, error)
}

type Database struct {
	DatabaseID int64
	TenantID   string
	Name       string
	FilePath   string
	CreatedAt  time.Time
}

// TableDef mirrors a table created through the API. ColumnsJSON holds the
// column specs as submitted; the SQLite file stays the source of truth for
// the live schema.
type TableDef struct {
	TableID      int64
	DatabaseID   int64
	TenantID     string
	DatabaseName string
	TableName    string
	ColumnsJSON  []byte
	CreatedAt    time.Time
}

type Snapshot struct {
	SnapshotID    int64
	TableID       int64
	TenantID      string
	DatabaseName  string
	TableName     string
	ObjectPath    string
	RowCount      int64
	FileSizeBytes int64
	CreatedBy     string
	CreatedAt     time.Time
}

type QuerySource string

const (
	QuerySourceSQL       QuerySource = "sql"
	QuerySourceTranslate QuerySource = "translate"
	QuerySourceSnapshot  QuerySource = "snapshot"
)

type QueryLogEntry struct {
	QueryID      int64
	DatabaseID   int64
	TenantID     string
	DatabaseName string
	Source       QuerySource
	Prompt       string
	SQLText      string
	Rule         string
	Status       string
	ErrorMessage string
	RowCount     int64
	DurationMs   int64
	CreatedAt    time.Time
}

type CreateDatabaseInput struct {
	TenantID string
	Name     string
	FilePath string
}

type CreateTableInput struct {
	DatabaseID  int64
	TableName   string
	ColumnsJSON []byte
}

type CreateSnapshotInput struct {
	TableID       int64
	ObjectPath    string
	RowCount      int64
	FileSizeBytes int64
	CreatedBy     string
}

type InsertQueryLogInput struct {
	DatabaseID   int64
	Source       QuerySource
	Prompt       string
	SQLText      string
	Rule         string
	Status       string
	ErrorMessage string
	RowCount     int64
	DurationMs   int64
}
