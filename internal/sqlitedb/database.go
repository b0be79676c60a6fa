package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tablecraft/tablecraft/internal/nl2sql"
	"github.com/tablecraft/tablecraft/internal/query"
)

// Database is an open SQLite file. Handles are owned by the Manager and
// must not be closed by callers.
type Database struct {
	name     string
	tenantID string
	path     string
	db       *sql.DB
}

func (d *Database) Name() string { return d.name }

func (d *Database) Path() string { return d.path }

func (d *Database) DB() *sql.DB { return d.db }

var allowedTypes = map[string]struct{}{
	"INTEGER":  {},
	"REAL":     {},
	"TEXT":     {},
	"BLOB":     {},
	"NUMERIC":  {},
	"BOOLEAN":  {},
	"DATE":     {},
	"DATETIME": {},
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
	Default    any    `json:"default,omitempty"`
}

type ColumnInfo struct {
	Name         string  `json:"name"`
	DeclaredType string  `json:"declared_type"`
	NotNull      bool    `json:"not_null"`
	PrimaryKey   bool    `json:"primary_key"`
	Default      *string `json:"default,omitempty"`
}

// CreateTableSQL renders the DDL for specs after validating every name and
// type. Defaults are rendered as literals since DDL cannot bind parameters.
func CreateTableSQL(table string, specs []ColumnSpec) (string, error) {
	if err := ValidateName("table", table); err != nil {
		return "", err
	}
	if len(specs) == 0 {
		return "", fmt.Errorf("table %q needs at least one column", table)
	}

	seen := make(map[string]struct{}, len(specs))
	definitions := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := ValidateName("column", spec.Name); err != nil {
			return "", err
		}
		key := strings.ToLower(spec.Name)
		if _, dup := seen[key]; dup {
			return "", fmt.Errorf("duplicate column %q", spec.Name)
		}
		seen[key] = struct{}{}

		columnType := strings.ToUpper(strings.TrimSpace(spec.Type))
		if _, ok := allowedTypes[columnType]; !ok {
			return "", fmt.Errorf("column %q has unsupported type %q", spec.Name, spec.Type)
		}

		parts := []string{query.QuoteIdent(spec.Name), columnType}
		if spec.PrimaryKey {
			parts = append(parts, "PRIMARY KEY")
		}
		if spec.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if spec.Unique {
			parts = append(parts, "UNIQUE")
		}
		if spec.Default != nil {
			literal, err := defaultLiteral(spec.Default)
			if err != nil {
				return "", fmt.Errorf("column %q: %w", spec.Name, err)
			}
			parts = append(parts, "DEFAULT "+literal)
		}
		definitions = append(definitions, strings.Join(parts, " "))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", query.QuoteIdent(table), strings.Join(definitions, ", ")), nil
}

func defaultLiteral(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(typed, "'", "''") + "'", nil
	case bool:
		if typed {
			return "1", nil
		}
		return "0", nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	default:
		return "", fmt.Errorf("unsupported default value %v", value)
	}
}

func (d *Database) CreateTable(ctx context.Context, table string, specs []ColumnSpec) error {
	ddl, err := CreateTableSQL(table, specs)
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	return nil
}

func (d *Database) DropTable(ctx context.Context, table string) error {
	if err := ValidateName("table", table); err != nil {
		return err
	}
	exists, err := d.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTableNotFound
	}
	if _, err := d.db.ExecContext(ctx, "DROP TABLE "+query.QuoteIdent(table)); err != nil {
		return fmt.Errorf("drop table %q: %w", table, err)
	}
	return nil
}

func (d *Database) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return tables, nil
}

func (d *Database) tableExists(ctx context.Context, table string) (bool, error) {
	var count int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check table %q: %w", table, err)
	}
	return count > 0, nil
}

// DescribeTable lists the live columns of table in declaration order.
func (d *Database) DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error) {
	if err := ValidateName("table", table); err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+query.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]ColumnInfo, 0)
	for rows.Next() {
		var (
			cid          int
			column       ColumnInfo
			declaredType sql.NullString
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &column.Name, &declaredType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		column.DeclaredType = declaredType.String
		column.NotNull = notNull != 0
		column.PrimaryKey = primaryKey > 0
		if defaultValue.Valid {
			value := defaultValue.String
			column.Default = &value
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column info: %w", err)
	}
	if len(columns) == 0 {
		return nil, ErrTableNotFound
	}
	return columns, nil
}

// TranslationContext describes table for a phrase translator: its columns
// in declaration order plus up to sampleRows example rows.
func (d *Database) TranslationContext(ctx context.Context, table string, sampleRows int) (nl2sql.TableContext, error) {
	columns, err := d.DescribeTable(ctx, table)
	if err != nil {
		return nl2sql.TableContext{}, err
	}
	tableContext := nl2sql.TableContext{
		TableName: table,
		Columns:   make([]nl2sql.Column, 0, len(columns)),
	}
	for _, column := range columns {
		tableContext.Columns = append(tableContext.Columns, nl2sql.Column{Name: column.Name, DeclaredType: column.DeclaredType})
	}
	if sampleRows > 0 {
		result, err := d.SelectRows(ctx, table, SelectOptions{Limit: sampleRows})
		if err != nil {
			return nl2sql.TableContext{}, err
		}
		tableContext.SampleRows = result.Rows
	}
	return tableContext, nil
}

// resolveColumns maps requested names onto the table's live columns,
// case-insensitively, and returns them sorted for stable statements.
func (d *Database) resolveColumns(ctx context.Context, table string, names []string) (map[string]string, []string, error) {
	columns, err := d.DescribeTable(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]string, len(columns))
	for _, column := range columns {
		known[strings.ToLower(column.Name)] = column.Name
	}

	resolved := make(map[string]string, len(names))
	for _, name := range names {
		actual, ok := known[strings.ToLower(name)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q on table %q", ErrUnknownColumn, name, table)
		}
		resolved[name] = actual
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return resolved, sorted, nil
}
