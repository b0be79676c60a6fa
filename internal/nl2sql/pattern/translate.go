package pattern

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tablecraft/tablecraft/internal/nl2sql"
)

const (
	RuleWhereFallback = "where_fallback"
	RuleDefault       = "default"

	FallbackWarning = "could not understand the request; showing the first 100 rows"
)

// safetyMarkers suppress the default row limit. The check is a plain
// substring test over the upper-cased statement, so a WHERE clause that
// happens to mention COUNT( also suppresses it.
var safetyMarkers = []string{"LIMIT", "COUNT(", "AVG(", "SUM(", "MAX(", "MIN("}

type Translation struct {
	SQL       string
	Warning   string
	Rule      string
	Aggregate bool
}

// Translate converts phrase into a single statement against table. It never
// fails: when no rule applies and no condition can be extracted it returns
// SELECT * FROM table LIMIT 100 with a warning.
func Translate(phrase, table string, columns []nl2sql.Column) Translation {
	original := strings.TrimSpace(norm.NFC.String(phrase))
	lowered := strings.ToLower(original)
	names := nl2sql.ColumnNames(columns)

	for _, candidate := range rules {
		if !candidate.trigger.MatchString(lowered) {
			continue
		}
		sql, ok := candidate.build(original, table, names)
		if !ok {
			continue
		}
		return Translation{SQL: applySafetyLimit(sql), Rule: candidate.name, Aggregate: candidate.aggregate}
	}

	if where := extractWhere(original, names); len(where) > 0 {
		sql := assemble(selectStatement{projection: "*", table: table, where: where})
		return Translation{SQL: applySafetyLimit(sql), Rule: RuleWhereFallback}
	}
	return Translation{
		SQL:     "SELECT * FROM " + table + " LIMIT " + defaultLimit,
		Warning: FallbackWarning,
		Rule:    RuleDefault,
	}
}

type selectStatement struct {
	projection string
	table      string
	where      []string
	groupBy    string
	orderBy    string
	limit      string
}

func assemble(stmt selectStatement) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(stmt.projection)
	b.WriteString(" FROM ")
	b.WriteString(stmt.table)
	if len(stmt.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(stmt.where, " AND "))
	}
	if stmt.groupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(stmt.groupBy)
	}
	if stmt.orderBy != "" {
		b.WriteString(" ")
		b.WriteString(stmt.orderBy)
	}
	if stmt.limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(stmt.limit)
	}
	return b.String()
}

func applySafetyLimit(sql string) string {
	upper := strings.ToUpper(sql)
	for _, marker := range safetyMarkers {
		if strings.Contains(upper, marker) {
			return sql
		}
	}
	return sql + " LIMIT " + defaultLimit
}
