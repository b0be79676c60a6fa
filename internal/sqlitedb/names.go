package sqlitedb

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
	tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,127}$`)
)

// reservedWords are SQLite keywords that cannot appear as bare identifiers.
// Translated statements name tables and columns unquoted.
var reservedWords = map[string]struct{}{
	"ADD": {}, "ALL": {}, "ALTER": {}, "AND": {}, "AS": {}, "AUTOINCREMENT": {},
	"BETWEEN": {}, "CASE": {}, "CHECK": {}, "COLLATE": {}, "COMMIT": {},
	"CONSTRAINT": {}, "CREATE": {}, "CROSS": {}, "CURRENT_DATE": {},
	"CURRENT_TIME": {}, "CURRENT_TIMESTAMP": {}, "DEFAULT": {}, "DEFERRABLE": {},
	"DELETE": {}, "DISTINCT": {}, "DROP": {}, "ELSE": {}, "ESCAPE": {},
	"EXCEPT": {}, "EXISTS": {}, "FILTER": {}, "FOREIGN": {}, "FROM": {},
	"FULL": {}, "GROUP": {}, "HAVING": {}, "IN": {}, "INDEX": {}, "INDEXED": {},
	"INNER": {}, "INSERT": {}, "INTERSECT": {}, "INTO": {}, "IS": {},
	"ISNULL": {}, "JOIN": {}, "LEFT": {}, "LIMIT": {}, "NATURAL": {}, "NOT": {},
	"NOTHING": {}, "NOTNULL": {}, "NULL": {}, "ON": {}, "OR": {}, "ORDER": {},
	"OUTER": {}, "OVER": {}, "PRIMARY": {}, "REFERENCES": {}, "RETURNING": {},
	"RIGHT": {}, "SELECT": {}, "SET": {}, "TABLE": {}, "THEN": {}, "TO": {},
	"TRANSACTION": {}, "UNION": {}, "UNIQUE": {}, "UPDATE": {}, "USING": {},
	"VALUES": {}, "WHEN": {}, "WHERE": {}, "WINDOW": {},
}

// ValidateName checks database, table and column names. Names that pass can
// be used as file names and as bare identifiers in generated SQL.
func ValidateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %s name %q must match %s", ErrInvalidName, kind, name, namePattern.String())
	}
	if _, reserved := reservedWords[strings.ToUpper(name)]; reserved {
		return fmt.Errorf("%w: %s name %q is a reserved SQL keyword", ErrInvalidName, kind, name)
	}
	return nil
}

func validateTenant(tenantID string) error {
	if !tenantPattern.MatchString(tenantID) || tenantID == "." || tenantID == ".." {
		return fmt.Errorf("%w: tenant id %q", ErrInvalidName, tenantID)
	}
	return nil
}
