package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tablecraft/tablecraft/internal/catalog"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var embeddedFS embed.FS

const migrationTable = "tablecraft_schema_migrations"

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// Runner applies the catalog schema. Each dialect carries its own script
// directory under sql/.
type Runner struct {
	fsys    fs.FS
	dialect catalog.Dialect
}

func NewRunner(dialect catalog.Dialect) *Runner {
	if dialect == "" {
		dialect = catalog.DialectSQLite
	}
	return &Runner{fsys: embeddedFS, dialect: dialect}
}

func (r *Runner) dir() string {
	return path.Join("sql", string(r.dialect))
}

type migration struct {
	Version int64
	UpSQL   string
	DownSQL string
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	plan, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range plan.pending() {
		if steps > 0 && count >= steps {
			break
		}
		mark := `INSERT INTO ` + migrationTable + ` (version) VALUES ($1)`
		if err := r.step(ctx, db, "apply", item.Version, item.UpSQL, mark); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	plan, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := len(plan.applied) - 1; i >= 0 && count < steps; i-- {
		version := plan.applied[i]
		item, ok := plan.byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d is missing from source", version)
		}
		mark := `DELETE FROM ` + migrationTable + ` WHERE version = $1`
		if err := r.step(ctx, db, "rollback", item.Version, item.DownSQL, mark); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// VersionState reports whether one known migration is applied.
type VersionState struct {
	Version int64
	Applied bool
}

// Status lists every embedded migration with its applied state.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionState, error) {
	plan, err := r.plan(ctx, db)
	if err != nil {
		return nil, err
	}
	states := make([]VersionState, 0, len(plan.all))
	for _, item := range plan.all {
		_, applied := plan.appliedSet[item.Version]
		states = append(states, VersionState{Version: item.Version, Applied: applied})
	}
	return states, nil
}

type migrationPlan struct {
	all        []migration
	byVersion  map[int64]migration
	applied    []int64
	appliedSet map[int64]struct{}
}

func (p migrationPlan) pending() []migration {
	out := make([]migration, 0, len(p.all))
	for _, item := range p.all {
		if _, ok := p.appliedSet[item.Version]; !ok {
			out = append(out, item)
		}
	}
	return out
}

func (r *Runner) plan(ctx context.Context, db *sql.DB) (migrationPlan, error) {
	all, err := loadMigrations(r.fsys, r.dir())
	if err != nil {
		return migrationPlan{}, err
	}
	if err := r.ensureMigrationTable(ctx, db); err != nil {
		return migrationPlan{}, err
	}
	applied, err := listAppliedVersions(ctx, db)
	if err != nil {
		return migrationPlan{}, err
	}
	plan := migrationPlan{
		all:        all,
		byVersion:  make(map[int64]migration, len(all)),
		applied:    applied,
		appliedSet: make(map[int64]struct{}, len(applied)),
	}
	for _, item := range all {
		plan.byVersion[item.Version] = item
	}
	for _, version := range applied {
		plan.appliedSet[version] = struct{}{}
	}
	return plan, nil
}

func (r *Runner) ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	appliedAt := "TIMESTAMPTZ NOT NULL DEFAULT NOW()"
	if r.dialect == catalog.DialectSQLite {
		appliedAt = "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (version BIGINT PRIMARY KEY, applied_at ` + appliedAt + `)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

// step runs script and the bookkeeping statement mark in one transaction.
func (r *Runner) step(ctx context.Context, db *sql.DB, action string, version int64, script, mark string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s migration %d: begin tx: %w", action, version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %d: %w", action, version, err)
	}
	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(mark), version); err != nil {
		return fmt.Errorf("%s migration %d: record version: %w", action, version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s migration %d: commit: %w", action, version, err)
	}
	return nil
}

// listAppliedVersions returns recorded versions in ascending order.
func listAppliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		direction := matches[2]

		script, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		switch direction {
		case "up":
			item.UpSQL = string(script)
		case "down":
			item.DownSQL = string(script)
		default:
			return nil, fmt.Errorf("unsupported migration direction %q", direction)
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	migrations := make([]migration, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", version)
		}
		migrations = append(migrations, item)
	}
	return migrations, nil
}
