package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	manager, err := sqlitedb.NewManager(sqlitedb.Config{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	if _, err := manager.Create(context.Background(), "tenant-1", "shop"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return NewEngine(manager)
}

func execute(t *testing.T, engine *Engine, sqlText string, rowLimit int) query.Result {
	t.Helper()
	result, err := engine.Execute(context.Background(), query.Request{
		TenantID: "tenant-1",
		Database: "shop",
		SQL:      sqlText,
		RowLimit: rowLimit,
	})
	if err != nil {
		t.Fatalf("Execute(%q) error = %v", sqlText, err)
	}
	return result
}

func TestExecuteRoutesStatementsByKind(t *testing.T) {
	engine := newTestEngine(t)

	created := execute(t, engine, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);", 0)
	if created.Kind != query.KindExec {
		t.Fatalf("Kind = %q", created.Kind)
	}

	inserted := execute(t, engine, "INSERT INTO users (name, age) VALUES ('a', 1), ('b', 2), ('c', 3)", 0)
	if inserted.Kind != query.KindExec || inserted.RowsAffected != 3 || inserted.LastInsertID != 3 {
		t.Fatalf("insert result = %+v", inserted)
	}

	selected := execute(t, engine, "SELECT name FROM users ORDER BY age DESC;", 0)
	if selected.Kind != query.KindRows || len(selected.Rows) != 3 || selected.Rows[0][0] != "c" {
		t.Fatalf("select result = %+v", selected)
	}

	limited := execute(t, engine, "SELECT * FROM users", 2)
	if len(limited.Rows) != 2 {
		t.Fatalf("len(limited.Rows) = %d", len(limited.Rows))
	}

	pragma := execute(t, engine, "PRAGMA table_info(users)", 1)
	if pragma.Kind != query.KindRows || len(pragma.Rows) != 3 {
		t.Fatalf("pragma result = %+v", pragma)
	}
}

func TestExecuteValidatesRequest(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Execute(ctx, query.Request{TenantID: "tenant-1", Database: "shop", SQL: " ; "}); err == nil {
		t.Fatal("expected error for empty sql")
	}
	if _, err := engine.Execute(ctx, query.Request{TenantID: "tenant-1", SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for missing database")
	}
	_, err := engine.Execute(ctx, query.Request{TenantID: "tenant-1", Database: "missing", SQL: "SELECT 1"})
	if !errors.Is(err, sqlitedb.ErrDatabaseNotFound) {
		t.Fatalf("error = %v, want %v", err, sqlitedb.ErrDatabaseNotFound)
	}
}

func TestExecuteSurfacesSQLErrors(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Execute(context.Background(), query.Request{TenantID: "tenant-1", Database: "shop", SQL: "SELECT * FROM nope"}); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestStatementOperation(t *testing.T) {
	tests := map[string]string{
		"INSERT INTO t VALUES (1)": "insert",
		"update t set a = 1":       "update",
		"DELETE FROM t":            "delete",
		"CREATE TABLE t (a)":       "other",
		"":                         "other",
	}
	for sqlText, want := range tests {
		if got := statementOperation(sqlText); got != want {
			t.Fatalf("statementOperation(%q) = %q, want %q", sqlText, got, want)
		}
	}
}
