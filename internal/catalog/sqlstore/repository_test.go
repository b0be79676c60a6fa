package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tablecraft/tablecraft/internal/catalog"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestCreateDatabase(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO database_def (tenant_id, name, file_path, created_at)
VALUES ($1, $2, $3, $4)
RETURNING database_id`)).
		WithArgs("tenant-1", "shop", "/data/tenant-1/shop.db", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"database_id"}).AddRow(int64(7)))

	database, err := repo.CreateDatabase(context.Background(), catalog.CreateDatabaseInput{
		TenantID: "tenant-1",
		Name:     "shop",
		FilePath: "/data/tenant-1/shop.db",
	})
	if err != nil {
		t.Fatalf("CreateDatabase() error = %v", err)
	}
	if database.DatabaseID != 7 {
		t.Fatalf("DatabaseID = %d", database.DatabaseID)
	}
	if !database.CreatedAt.Equal(fixedNow) {
		t.Fatalf("CreatedAt = %v, want %v", database.CreatedAt, fixedNow)
	}
	assertSQLMock(t, mock)
}

func TestCreateDatabaseRebindsPlaceholdersForSQLite(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectSQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`VALUES (?1, ?2, ?3, ?4)`)).
		WithArgs("tenant-1", "shop", "shop.db", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"database_id"}).AddRow(int64(1)))

	if _, err := repo.CreateDatabase(context.Background(), catalog.CreateDatabaseInput{
		TenantID: "tenant-1",
		Name:     "shop",
		FilePath: "shop.db",
	}); err != nil {
		t.Fatalf("CreateDatabase() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestCreateDatabaseDuplicateReturnsAlreadyExists(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO database_def`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.CreateDatabase(context.Background(), catalog.CreateDatabaseInput{TenantID: "tenant-1", Name: "shop"})
	if !errors.Is(err, catalog.ErrAlreadyExists) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrAlreadyExists)
	}
	assertSQLMock(t, mock)
}

func TestGetDatabaseReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT database_id, tenant_id, name, file_path, created_at
FROM database_def
WHERE tenant_id = $1 AND name = $2`)).
		WithArgs("tenant-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDatabase(context.Background(), "tenant-1", "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestListDatabases(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM database_def
WHERE tenant_id = $1
ORDER BY name ASC`)).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"database_id", "tenant_id", "name", "file_path", "created_at"}).
			AddRow(int64(1), "tenant-1", "crm", "crm.db", fixedNow).
			AddRow(int64(2), "tenant-1", "shop", "shop.db", fixedNow))

	databases, err := repo.ListDatabases(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("ListDatabases() error = %v", err)
	}
	if len(databases) != 2 || databases[0].Name != "crm" || databases[1].Name != "shop" {
		t.Fatalf("databases = %+v", databases)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDatabaseReportsMissingRow(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM database_def`)).
		WithArgs("tenant-1", "shop").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteDatabase(context.Background(), "tenant-1", "shop")
	if err != nil {
		t.Fatalf("DeleteDatabase() error = %v", err)
	}
	if deleted {
		t.Fatal("expected deleted=false")
	}
	assertSQLMock(t, mock)
}

func TestCreateTableDefaultsColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO table_def (database_id, table_name, columns_json, created_at)
VALUES ($1, $2, $3, $4)
RETURNING table_id`)).
		WithArgs(int64(7), "users", "[]", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"table_id"}).AddRow(int64(11)))

	table, err := repo.CreateTable(context.Background(), catalog.CreateTableInput{DatabaseID: 7, TableName: "users"})
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if table.TableID != 11 || string(table.ColumnsJSON) != "[]" {
		t.Fatalf("table = %+v", table)
	}
	assertSQLMock(t, mock)
}

func TestGetTableByName(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectSQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE dd.tenant_id = ?1 AND dd.name = ?2 AND td.table_name = ?3`)).
		WithArgs("tenant-1", "shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"table_id", "database_id", "tenant_id", "name", "table_name", "columns_json", "created_at"}).
			AddRow(int64(11), int64(7), "tenant-1", "shop", "users", `[{"name":"id"}]`, fixedNow))

	table, err := repo.GetTableByName(context.Background(), "tenant-1", "shop", "users")
	if err != nil {
		t.Fatalf("GetTableByName() error = %v", err)
	}
	if table.DatabaseName != "shop" || string(table.ColumnsJSON) != `[{"name":"id"}]` {
		t.Fatalf("table = %+v", table)
	}
	assertSQLMock(t, mock)
}

func TestDeleteTableByName(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM table_def`)).
		WithArgs("tenant-1", "shop", "users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteTableByName(context.Background(), "tenant-1", "shop", "users")
	if err != nil {
		t.Fatalf("DeleteTableByName() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	assertSQLMock(t, mock)
}

func TestListSnapshotsAppliesLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY ts.snapshot_id DESC
LIMIT $4`)).
		WithArgs("tenant-1", "shop", "users", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"snapshot_id", "table_id", "tenant_id", "name", "table_name", "object_path",
			"row_count", "file_size_bytes", "created_by", "created_at",
		}).AddRow(int64(3), int64(11), "tenant-1", "shop", "users", "tenant-1/shop/users/snapshot-a.parquet", int64(42), int64(2048), "alice", fixedNow))

	snapshots, err := repo.ListSnapshots(context.Background(), "tenant-1", "shop", "users", 5)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].RowCount != 42 || snapshots[0].TableName != "users" {
		t.Fatalf("snapshots = %+v", snapshots)
	}
	assertSQLMock(t, mock)
}

func TestGetSnapshotByIDReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE dd.tenant_id = $1 AND ts.snapshot_id = $2`)).
		WithArgs("tenant-1", int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSnapshotByID(context.Background(), "tenant-1", 99)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestDeleteSnapshotScopesToTenant(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectSQLite)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE snapshot_id = ?2`)).
		WithArgs("tenant-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteSnapshot(context.Background(), "tenant-1", 7)
	if err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}
	if deleted {
		t.Fatal("expected deleted=false for a snapshot owned by another tenant")
	}
	assertSQLMock(t, mock)
}

func TestInsertQueryLogDefaultsStatus(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO query_log`)).
		WithArgs(int64(7), "translate", "users older than 30", "SELECT * FROM users WHERE age > 30 LIMIT 100;",
			"where_gt", "ok", "", int64(3), int64(12), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"query_id"}).AddRow(int64(5)))

	entry, err := repo.InsertQueryLog(context.Background(), catalog.InsertQueryLogInput{
		DatabaseID: 7,
		Source:     catalog.QuerySourceTranslate,
		Prompt:     "users older than 30",
		SQLText:    "SELECT * FROM users WHERE age > 30 LIMIT 100;",
		Rule:       "where_gt",
		RowCount:   3,
		DurationMs: 12,
	})
	if err != nil {
		t.Fatalf("InsertQueryLog() error = %v", err)
	}
	if entry.QueryID != 5 || entry.Status != "ok" {
		t.Fatalf("entry = %+v", entry)
	}
	assertSQLMock(t, mock)
}

func TestListQueryLogDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, catalog.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY ql.query_id DESC
LIMIT $3`)).
		WithArgs("tenant-1", "shop", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"query_id", "database_id", "tenant_id", "name", "source", "prompt", "sql_text", "rule",
			"status", "error_message", "row_count", "duration_ms", "created_at",
		}).AddRow(int64(5), int64(7), "tenant-1", "shop", "sql", "", "SELECT 1", "", "ok", "", int64(1), int64(2), fixedNow))

	entries, err := repo.ListQueryLog(context.Background(), "tenant-1", "shop", 0)
	if err != nil {
		t.Fatalf("ListQueryLog() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != catalog.QuerySourceSQL {
		t.Fatalf("entries = %+v", entries)
	}
	assertSQLMock(t, mock)
}

func newTestRepository(db *sql.DB, dialect catalog.Dialect) *Repository {
	repo := NewRepository(db, dialect)
	repo.now = func() time.Time { return fixedNow }
	return repo
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
