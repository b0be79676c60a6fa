package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect names the SQL flavour of the catalog database. Catalog queries are
// written with PostgreSQL $n placeholders and rebound for SQLite.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var postgresPlaceholder = regexp.MustCompile(`\$([0-9]+)`)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectSQLite:
		return DialectSQLite, nil
	case DialectPostgres:
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported catalog dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// Rebind rewrites $n placeholders into the dialect's positional form.
// SQLite accepts ?NNN, which keeps repeated parameters pointing at the same
// argument.
func (d Dialect) Rebind(query string) string {
	if d != DialectSQLite {
		return query
	}
	return postgresPlaceholder.ReplaceAllString(query, "?$1")
}
