package storage

import (
	"fmt"
	"path"
	"regexp"

	"github.com/google/uuid"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath lays snapshots out as
// <tenant>/<database>/<table>/snapshot-<id>.parquet.
func BuildSnapshotPath(tenantID, databaseName, tableName string, id uuid.UUID) (string, error) {
	prefix, err := BuildTablePrefix(tenantID, databaseName, tableName)
	if err != nil {
		return "", err
	}
	if id == uuid.Nil {
		return "", fmt.Errorf("snapshot id is required")
	}
	return path.Join(prefix, fmt.Sprintf("snapshot-%s.parquet", id.String())), nil
}

func BuildTablePrefix(tenantID, databaseName, tableName string) (string, error) {
	databasePrefix, err := BuildDatabasePrefix(tenantID, databaseName)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return databasePrefix + tableName + "/", nil
}

// BuildDatabasePrefix ends with a slash so that listing "shop" never picks
// up objects of "shop2".
func BuildDatabasePrefix(tenantID, databaseName string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(databaseName, "database name"); err != nil {
		return "", err
	}
	return tenantID + "/" + databaseName + "/", nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
