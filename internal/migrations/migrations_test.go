package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tablecraft/tablecraft/internal/catalog"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/sqlite/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/sqlite/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/sqlite/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/sqlite/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/sqlite/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys, "sql/sqlite")
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/sqlite/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys, "sql/sqlite")
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbeddedMigrationsCoverEveryDialect(t *testing.T) {
	for _, dialect := range []catalog.Dialect{catalog.DialectSQLite, catalog.DialectPostgres} {
		runner := NewRunner(dialect)
		items, err := loadMigrations(runner.fsys, runner.dir())
		if err != nil {
			t.Fatalf("loadMigrations(%s) error = %v", dialect, err)
		}
		if len(items) == 0 {
			t.Fatalf("no migrations embedded for %s", dialect)
		}
	}
}

func TestRunnerAppliesAndRollsBackSQLiteCatalog(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	runner := NewRunner(catalog.DialectSQLite)

	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	if applied < 1 {
		t.Fatalf("runner.Up() applied %d migrations, want at least 1", applied)
	}
	again, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("second runner.Up() error = %v", err)
	}
	if again != 0 {
		t.Fatalf("second runner.Up() applied %d migrations, want 0", again)
	}
	assertTableExists(t, db, "database_def", true)
	assertTableExists(t, db, "query_log", true)

	states, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("runner.Status() error = %v", err)
	}
	for _, state := range states {
		if !state.Applied {
			t.Fatalf("migration %d reported pending after Up", state.Version)
		}
	}

	rolledBack, err := runner.Down(ctx, db, 1)
	if err != nil {
		t.Fatalf("runner.Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("runner.Down() rolled back %d migrations, want 1", rolledBack)
	}
	assertTableExists(t, db, "database_def", false)

	states, err = runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("runner.Status() after Down error = %v", err)
	}
	if len(states) == 0 || states[len(states)-1].Applied {
		t.Fatalf("newest migration still applied after Down: %+v", states)
	}
}

func assertTableExists(t *testing.T, db *sql.DB, table string, expected bool) {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count); err != nil {
		t.Fatalf("query table %q existence failed: %v", table, err)
	}
	exists := count > 0
	if exists != expected {
		t.Fatalf("table %q exists = %v, want %v", table, exists, expected)
	}
}
