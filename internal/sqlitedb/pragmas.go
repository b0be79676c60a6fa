package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ApplyPragmas enables WAL journaling, foreign keys and a busy timeout on
// db. The settings are per connection, so callers keep a single connection.
func ApplyPragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}
