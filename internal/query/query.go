package query

import (
	"context"
	"time"
)

// Kind tells whether a statement produced a row set or only changed data.
type Kind string

const (
	KindRows Kind = "rows"
	KindExec Kind = "exec"
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

type Request struct {
	TenantID string
	Database string
	SQL      string
	RowLimit int
	Files    []TableFile
}

type Result struct {
	Kind         Kind
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
