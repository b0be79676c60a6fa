package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

// Engine runs arbitrary statements against a tenant's SQLite database.
type Engine struct {
	Databases *sqlitedb.Manager
}

func NewEngine(databases *sqlitedb.Manager) *Engine {
	return &Engine{Databases: databases}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if strings.TrimSpace(request.Database) == "" {
		return query.Result{}, fmt.Errorf("database is required")
	}
	if e.Databases == nil {
		return query.Result{}, fmt.Errorf("database manager is required")
	}

	database, err := e.Databases.Open(ctx, request.TenantID, request.Database)
	if err != nil {
		return query.Result{}, err
	}

	kind := query.Classify(sqlText)
	start := time.Now()
	var result query.Result
	if kind == query.KindRows {
		result, err = e.queryRows(ctx, database, sqlText, request.RowLimit)
	} else {
		result, err = e.exec(ctx, database, sqlText)
	}
	observability.ObserveStatement(string(kind), time.Since(start), err)
	if err != nil {
		return query.Result{}, err
	}
	result.Kind = kind
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) queryRows(ctx context.Context, database *sqlitedb.Database, sqlText string, rowLimit int) (query.Result, error) {
	// PRAGMA and EXPLAIN cannot be nested in a subquery.
	upper := strings.ToUpper(strings.TrimLeft(sqlText, " \t\r\n("))
	if rowLimit > 0 && !strings.HasPrefix(upper, "PRAGMA") && !strings.HasPrefix(upper, "EXPLAIN") {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := database.DB().QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func (e *Engine) exec(ctx context.Context, database *sqlitedb.Database, sqlText string) (query.Result, error) {
	result, err := database.DB().ExecContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return query.Result{}, fmt.Errorf("rows affected: %w", err)
	}
	lastID, err := result.LastInsertId()
	if err != nil {
		return query.Result{}, fmt.Errorf("last insert id: %w", err)
	}
	observability.AddMutatedRows(statementOperation(sqlText), affected)
	return query.Result{
		Columns:      []string{},
		Rows:         [][]any{},
		RowsAffected: affected,
		LastInsertID: lastID,
	}, nil
}

func statementOperation(sqlText string) string {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return "other"
	}
	switch keyword := strings.ToLower(fields[0]); keyword {
	case "insert", "update", "delete", "replace":
		return keyword
	default:
		return "other"
	}
}
