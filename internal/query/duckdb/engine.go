package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/storage"
)

var ErrReadOnly = errors.New("duckdb: snapshots are read-only; only read statements are allowed")

// Engine answers read queries over snapshot parquet files. Each call copies
// the referenced objects into a scratch directory and exposes every table as
// a view inside a fresh in-memory DuckDB.
type Engine struct {
	Store storage.ObjectStore
	// ScratchDir is where snapshot files are staged; empty means os.TempDir.
	ScratchDir string
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	switch {
	case sqlText == "":
		return query.Result{}, fmt.Errorf("sql is required")
	case query.Classify(sqlText) != query.KindRows:
		return query.Result{}, ErrReadOnly
	case len(request.Files) == 0:
		return query.Result{}, fmt.Errorf("no files available for snapshot")
	case e.Store == nil:
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	result, err := e.run(ctx, request, sqlText)
	observability.ObserveStatement("snapshot", time.Since(start), err)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) run(ctx context.Context, request query.Request, sqlText string) (query.Result, error) {
	scratch, err := os.MkdirTemp(e.ScratchDir, "tablecraft-snapshot-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	views := make(map[string]string, len(request.Files))
	var scanned int64
	for i, file := range request.Files {
		if _, dup := views[file.TableName]; dup {
			return query.Result{}, fmt.Errorf("table %q is listed more than once", file.TableName)
		}
		local := filepath.Join(scratch, fmt.Sprintf("%02d.parquet", i))
		if err := e.stage(ctx, file.ObjectPath, local); err != nil {
			return query.Result{}, err
		}
		views[file.TableName] = local
		scanned += file.FileSizeBytes
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for table, local := range views {
		statement := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM read_parquet(%s)", query.QuoteIdent(table), quoteLiteral(local))
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return query.Result{}, fmt.Errorf("expose snapshot of %q: %w", table, err)
		}
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, values, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Kind:         query.KindRows,
		Columns:      columns,
		Rows:         values,
		ScannedFiles: len(views),
		ScannedBytes: scanned,
	}, nil
}

// stage copies one object from the store to local.
func (e *Engine) stage(ctx context.Context, objectPath, local string) (err error) {
	reader, err := e.Store.Get(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("fetch snapshot object %q: %w", objectPath, err)
	}
	defer func() {
		if closeErr := reader.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close snapshot object %q: %w", objectPath, closeErr)
		}
	}()

	file, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("stage snapshot object %q: %w", objectPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("stage snapshot object %q: %w", objectPath, err)
	}
	return file.Close()
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
