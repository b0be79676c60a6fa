package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tablecraft/tablecraft/internal/catalog"
)

// Repository implements catalog.Repository over database/sql. Queries are
// written once with $n placeholders and rebound per dialect.
type Repository struct {
	db      *sql.DB
	dialect catalog.Dialect
	now     func() time.Time
}

func NewRepository(db *sql.DB, dialect catalog.Dialect) *Repository {
	if dialect == "" {
		dialect = catalog.DialectSQLite
	}
	return &Repository{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

var _ catalog.Repository = (*Repository)(nil)

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateDatabase(ctx context.Context, in catalog.CreateDatabaseInput) (catalog.Database, error) {
	database := catalog.Database{
		TenantID:  in.TenantID,
		Name:      in.Name,
		FilePath:  in.FilePath,
		CreatedAt: r.now(),
	}
	query := `
INSERT INTO database_def (tenant_id, name, file_path, created_at)
VALUES ($1, $2, $3, $4)
RETURNING database_id`
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), in.TenantID, in.Name, in.FilePath, database.CreatedAt).Scan(&database.DatabaseID); err != nil {
		if isUniqueViolation(err) {
			return catalog.Database{}, catalog.ErrAlreadyExists
		}
		return catalog.Database{}, fmt.Errorf("create database: %w", err)
	}
	return database, nil
}

func (r *Repository) GetDatabase(ctx context.Context, tenantID, name string) (catalog.Database, error) {
	query := `
SELECT database_id, tenant_id, name, file_path, created_at
FROM database_def
WHERE tenant_id = $1 AND name = $2`

	var database catalog.Database
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), tenantID, name).Scan(
		&database.DatabaseID,
		&database.TenantID,
		&database.Name,
		&database.FilePath,
		&database.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Database{}, catalog.ErrNotFound
		}
		return catalog.Database{}, fmt.Errorf("get database: %w", err)
	}
	return database, nil
}

func (r *Repository) ListDatabases(ctx context.Context, tenantID string) ([]catalog.Database, error) {
	query := `
SELECT database_id, tenant_id, name, file_path, created_at
FROM database_def
WHERE tenant_id = $1
ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	databases := make([]catalog.Database, 0)
	for rows.Next() {
		var database catalog.Database
		if err := rows.Scan(&database.DatabaseID, &database.TenantID, &database.Name, &database.FilePath, &database.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan database row: %w", err)
		}
		databases = append(databases, database)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate database rows: %w", err)
	}
	return databases, nil
}

// DeleteDatabase removes the database row; tables, snapshots and history
// go with it through ON DELETE CASCADE.
func (r *Repository) DeleteDatabase(ctx context.Context, tenantID, name string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
DELETE FROM database_def
WHERE tenant_id = $1 AND name = $2`), tenantID, name)
	if err != nil {
		return false, fmt.Errorf("delete database: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete database rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *Repository) CreateTable(ctx context.Context, in catalog.CreateTableInput) (catalog.TableDef, error) {
	columns := in.ColumnsJSON
	if len(columns) == 0 {
		columns = []byte("[]")
	}
	table := catalog.TableDef{
		DatabaseID:  in.DatabaseID,
		TableName:   in.TableName,
		ColumnsJSON: columns,
		CreatedAt:   r.now(),
	}
	query := `
INSERT INTO table_def (database_id, table_name, columns_json, created_at)
VALUES ($1, $2, $3, $4)
RETURNING table_id`
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), in.DatabaseID, in.TableName, string(columns), table.CreatedAt).Scan(&table.TableID); err != nil {
		if isUniqueViolation(err) {
			return catalog.TableDef{}, catalog.ErrAlreadyExists
		}
		return catalog.TableDef{}, fmt.Errorf("create table: %w", err)
	}
	return table, nil
}

const tableColumns = `td.table_id, td.database_id, dd.tenant_id, dd.name, td.table_name, td.columns_json, td.created_at`

func (r *Repository) GetTableByName(ctx context.Context, tenantID, databaseName, tableName string) (catalog.TableDef, error) {
	query := `
SELECT ` + tableColumns + `
FROM table_def AS td
JOIN database_def AS dd ON dd.database_id = td.database_id
WHERE dd.tenant_id = $1 AND dd.name = $2 AND td.table_name = $3`

	table, err := scanTable(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), tenantID, databaseName, tableName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.TableDef{}, catalog.ErrNotFound
		}
		return catalog.TableDef{}, fmt.Errorf("get table by name: %w", err)
	}
	return table, nil
}

func (r *Repository) ListTables(ctx context.Context, tenantID, databaseName string) ([]catalog.TableDef, error) {
	query := `
SELECT ` + tableColumns + `
FROM table_def AS td
JOIN database_def AS dd ON dd.database_id = td.database_id
WHERE dd.tenant_id = $1 AND dd.name = $2
ORDER BY td.table_name ASC`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), tenantID, databaseName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]catalog.TableDef, 0)
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func (r *Repository) DeleteTableByName(ctx context.Context, tenantID, databaseName, tableName string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
DELETE FROM table_def
WHERE table_name = $3
  AND database_id IN (SELECT database_id FROM database_def WHERE tenant_id = $1 AND name = $2)`), tenantID, databaseName, tableName)
	if err != nil {
		return false, fmt.Errorf("delete table by name: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete table by name rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *Repository) CreateSnapshot(ctx context.Context, in catalog.CreateSnapshotInput) (catalog.Snapshot, error) {
	snapshot := catalog.Snapshot{
		TableID:       in.TableID,
		ObjectPath:    in.ObjectPath,
		RowCount:      in.RowCount,
		FileSizeBytes: in.FileSizeBytes,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     r.now(),
	}
	query := `
INSERT INTO table_snapshot (table_id, object_path, row_count, file_size_bytes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING snapshot_id`
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query),
		in.TableID, in.ObjectPath, in.RowCount, in.FileSizeBytes, in.CreatedBy, snapshot.CreatedAt,
	).Scan(&snapshot.SnapshotID); err != nil {
		return catalog.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	return snapshot, nil
}

const snapshotColumns = `ts.snapshot_id, ts.table_id, dd.tenant_id, dd.name, td.table_name, ts.object_path, ts.row_count, ts.file_size_bytes, ts.created_by, ts.created_at`

const snapshotJoins = `
FROM table_snapshot AS ts
JOIN table_def AS td ON td.table_id = ts.table_id
JOIN database_def AS dd ON dd.database_id = td.database_id`

func (r *Repository) ListSnapshots(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]catalog.Snapshot, error) {
	query := `
SELECT ` + snapshotColumns + snapshotJoins + `
WHERE dd.tenant_id = $1 AND dd.name = $2 AND td.table_name = $3
ORDER BY ts.snapshot_id DESC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, r.dialect.Rebind(query+`
LIMIT $4`), tenantID, databaseName, tableName, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, r.dialect.Rebind(query), tenantID, databaseName, tableName)
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshots := make([]catalog.Snapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

func (r *Repository) GetSnapshotByID(ctx context.Context, tenantID string, snapshotID int64) (catalog.Snapshot, error) {
	query := `
SELECT ` + snapshotColumns + snapshotJoins + `
WHERE dd.tenant_id = $1 AND ts.snapshot_id = $2`

	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), tenantID, snapshotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Snapshot{}, catalog.ErrNotFound
		}
		return catalog.Snapshot{}, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snapshot, nil
}

func (r *Repository) DeleteSnapshot(ctx context.Context, tenantID string, snapshotID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
DELETE FROM table_snapshot
WHERE snapshot_id = $2
  AND table_id IN (
    SELECT td.table_id FROM table_def AS td
    JOIN database_def AS dd ON dd.database_id = td.database_id
    WHERE dd.tenant_id = $1
  )`), tenantID, snapshotID)
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete snapshot rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *Repository) InsertQueryLog(ctx context.Context, in catalog.InsertQueryLogInput) (catalog.QueryLogEntry, error) {
	entry := catalog.QueryLogEntry{
		DatabaseID:   in.DatabaseID,
		Source:       in.Source,
		Prompt:       in.Prompt,
		SQLText:      in.SQLText,
		Rule:         in.Rule,
		Status:       in.Status,
		ErrorMessage: in.ErrorMessage,
		RowCount:     in.RowCount,
		DurationMs:   in.DurationMs,
		CreatedAt:    r.now(),
	}
	if entry.Status == "" {
		entry.Status = "ok"
	}
	query := `
INSERT INTO query_log (database_id, source, prompt, sql_text, rule, status, error_message, row_count, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING query_id`
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query),
		entry.DatabaseID, string(entry.Source), entry.Prompt, entry.SQLText, entry.Rule,
		entry.Status, entry.ErrorMessage, entry.RowCount, entry.DurationMs, entry.CreatedAt,
	).Scan(&entry.QueryID); err != nil {
		return catalog.QueryLogEntry{}, fmt.Errorf("insert query log: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListQueryLog(ctx context.Context, tenantID, databaseName string, limit int) ([]catalog.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT ql.query_id, ql.database_id, dd.tenant_id, dd.name, ql.source, ql.prompt, ql.sql_text, ql.rule,
       ql.status, ql.error_message, ql.row_count, ql.duration_ms, ql.created_at
FROM query_log AS ql
JOIN database_def AS dd ON dd.database_id = ql.database_id
WHERE dd.tenant_id = $1 AND dd.name = $2
ORDER BY ql.query_id DESC
LIMIT $3`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), tenantID, databaseName, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]catalog.QueryLogEntry, 0)
	for rows.Next() {
		var entry catalog.QueryLogEntry
		var source string
		if err := rows.Scan(
			&entry.QueryID,
			&entry.DatabaseID,
			&entry.TenantID,
			&entry.DatabaseName,
			&source,
			&entry.Prompt,
			&entry.SQLText,
			&entry.Rule,
			&entry.Status,
			&entry.ErrorMessage,
			&entry.RowCount,
			&entry.DurationMs,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		entry.Source = catalog.QuerySource(source)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log rows: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(row rowScanner) (catalog.TableDef, error) {
	var table catalog.TableDef
	var columns string
	if err := row.Scan(
		&table.TableID,
		&table.DatabaseID,
		&table.TenantID,
		&table.DatabaseName,
		&table.TableName,
		&columns,
		&table.CreatedAt,
	); err != nil {
		return catalog.TableDef{}, err
	}
	table.ColumnsJSON = []byte(columns)
	return table, nil
}

func scanSnapshot(row rowScanner) (catalog.Snapshot, error) {
	var snapshot catalog.Snapshot
	if err := row.Scan(
		&snapshot.SnapshotID,
		&snapshot.TableID,
		&snapshot.TenantID,
		&snapshot.DatabaseName,
		&snapshot.TableName,
		&snapshot.ObjectPath,
		&snapshot.RowCount,
		&snapshot.FileSizeBytes,
		&snapshot.CreatedBy,
		&snapshot.CreatedAt,
	); err != nil {
		return catalog.Snapshot{}, err
	}
	return snapshot, nil
}
