package query

import (
	"database/sql"
	"fmt"
	"strings"
)

var rowPrefixes = []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"}

// Classify inspects only the leading keyword. Anything that does not start
// like a read is executed for its side effects.
func Classify(sqlText string) Kind {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n(")
	upper := strings.ToUpper(trimmed)
	for _, prefix := range rowPrefixes {
		if strings.HasPrefix(upper, prefix) {
			rest := upper[len(prefix):]
			if rest == "" || !isIdentByte(rest[0]) {
				return KindRows
			}
		}
	}
	return KindExec
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// CollectRows drains rows into column names and normalized values.
func CollectRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

// NormalizeValues turns driver byte slices into strings so rows encode as
// readable JSON.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
