package nl2sql

import "context"

type Column struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type"`
}

type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []Column `json:"columns"`
	SampleRows [][]any  `json:"sample_rows,omitempty"`
}

type Request struct {
	TenantID        string         `json:"tenant_id"`
	Database        string         `json:"database"`
	Table           string         `json:"table"`
	NaturalLanguage string         `json:"natural_language"`
	Tables          []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Warning  string `json:"warning,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

func ColumnNames(columns []Column) []string {
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, column.Name)
	}
	return names
}
