package catalog

import "testing"

func TestRebindSQLiteUsesNumberedPlaceholders(t *testing.T) {
	query := `SELECT 1 FROM table_def WHERE database_id = $1 AND table_name = $2 OR table_name = $12`
	got := DialectSQLite.Rebind(query)
	want := `SELECT 1 FROM table_def WHERE database_id = ?1 AND table_name = ?2 OR table_name = ?12`
	if got != want {
		t.Fatalf("Rebind() = %q, want %q", got, want)
	}
}

func TestRebindPostgresIsIdentity(t *testing.T) {
	query := `SELECT $1, $2`
	if got := DialectPostgres.Rebind(query); got != query {
		t.Fatalf("Rebind() = %q", got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"sqlite": DialectSQLite, " Postgres ": DialectPostgres}
	for raw, want := range cases {
		got, err := ParseDialect(raw)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
	if DialectPostgres.DriverName() != "pgx" || DialectSQLite.DriverName() != "sqlite3" {
		t.Fatal("unexpected driver names")
	}
}
