package sqlitedb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
)

// Values maps column names to the values bound for them.
type Values map[string]any

type Change struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id,omitempty"`
}

type SelectOptions struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
	Where   Values
}

func keys(values Values) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	return names
}

// whereClause renders an equality conjunction. Nil values match NULL.
func whereClause(resolved map[string]string, names []string, values Values) (string, []any) {
	if len(names) == 0 {
		return "", nil
	}
	conditions := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		column := query.QuoteIdent(resolved[name])
		if values[name] == nil {
			conditions = append(conditions, column+" IS NULL")
			continue
		}
		conditions = append(conditions, column+" = ?")
		args = append(args, values[name])
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (d *Database) InsertRow(ctx context.Context, table string, values Values) (Change, error) {
	resolved, names, err := d.resolveColumns(ctx, table, keys(values))
	if err != nil {
		return Change{}, err
	}

	statement := "INSERT INTO " + query.QuoteIdent(table)
	args := make([]any, 0, len(names))
	if len(names) == 0 {
		statement += " DEFAULT VALUES"
	} else {
		columns := make([]string, 0, len(names))
		placeholders := make([]string, 0, len(names))
		for _, name := range names {
			columns = append(columns, query.QuoteIdent(resolved[name]))
			placeholders = append(placeholders, "?")
			args = append(args, values[name])
		}
		statement += " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	}
	return d.exec(ctx, "insert", statement, args)
}

// UpdateRows sets columns on every row matching where. An empty filter is
// rejected; whole-table updates go through the SQL endpoint.
func (d *Database) UpdateRows(ctx context.Context, table string, set, where Values) (Change, error) {
	if len(set) == 0 {
		return Change{}, fmt.Errorf("update needs at least one column to set")
	}
	if len(where) == 0 {
		return Change{}, ErrMissingFilter
	}
	setResolved, setNames, err := d.resolveColumns(ctx, table, keys(set))
	if err != nil {
		return Change{}, err
	}
	whereResolved, whereNames, err := d.resolveColumns(ctx, table, keys(where))
	if err != nil {
		return Change{}, err
	}

	assignments := make([]string, 0, len(setNames))
	args := make([]any, 0, len(setNames)+len(whereNames))
	for _, name := range setNames {
		assignments = append(assignments, query.QuoteIdent(setResolved[name])+" = ?")
		args = append(args, set[name])
	}
	clause, whereArgs := whereClause(whereResolved, whereNames, where)
	args = append(args, whereArgs...)

	statement := "UPDATE " + query.QuoteIdent(table) + " SET " + strings.Join(assignments, ", ") + clause
	return d.exec(ctx, "update", statement, args)
}

func (d *Database) DeleteRows(ctx context.Context, table string, where Values) (Change, error) {
	if len(where) == 0 {
		return Change{}, ErrMissingFilter
	}
	resolved, names, err := d.resolveColumns(ctx, table, keys(where))
	if err != nil {
		return Change{}, err
	}
	clause, args := whereClause(resolved, names, where)
	return d.exec(ctx, "delete", "DELETE FROM "+query.QuoteIdent(table)+clause, args)
}

func (d *Database) SelectRows(ctx context.Context, table string, opts SelectOptions) (query.Result, error) {
	names := keys(opts.Where)
	if opts.OrderBy != "" {
		names = append(names, opts.OrderBy)
	}
	resolved, _, err := d.resolveColumns(ctx, table, names)
	if err != nil {
		return query.Result{}, err
	}
	whereNames := keys(opts.Where)
	sort.Strings(whereNames)
	clause, args := whereClause(resolved, whereNames, opts.Where)

	statement := "SELECT * FROM " + query.QuoteIdent(table) + clause
	if opts.OrderBy != "" {
		statement += " ORDER BY " + query.QuoteIdent(resolved[opts.OrderBy])
		if opts.Desc {
			statement += " DESC"
		}
	}
	if opts.Limit > 0 {
		statement += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			statement += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, statement, args...)
	if err != nil {
		observability.ObserveStatement(string(query.KindRows), time.Since(start), err)
		return query.Result{}, fmt.Errorf("select rows from %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := query.CollectRows(rows)
	observability.ObserveStatement(string(query.KindRows), time.Since(start), err)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Kind:     query.KindRows,
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (d *Database) exec(ctx context.Context, operation, statement string, args []any) (Change, error) {
	start := time.Now()
	result, err := d.db.ExecContext(ctx, statement, args...)
	observability.ObserveStatement(string(query.KindExec), time.Since(start), err)
	if err != nil {
		return Change{}, fmt.Errorf("%s rows: %w", operation, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Change{}, fmt.Errorf("%s rows affected: %w", operation, err)
	}
	change := Change{RowsAffected: affected}
	if operation == "insert" {
		if id, err := result.LastInsertId(); err == nil {
			change.LastInsertID = id
		}
	}
	observability.AddMutatedRows(operation, affected)
	return change, nil
}
