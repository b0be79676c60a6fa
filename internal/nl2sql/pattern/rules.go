package pattern

import (
	"regexp"
	"strings"
)

// builder turns a matched phrase into a statement. ok=false means the rule
// could not complete and the matcher moves on to the next rule.
type builder func(phrase, table string, columns []string) (sql string, ok bool)

type rule struct {
	name      string
	trigger   *regexp.Regexp
	aggregate bool
	build     builder
}

type aggregateFunc struct {
	function string
	alias    string
	keywords keywordSet
}

var (
	average = aggregateFunc{function: "AVG", alias: "average", keywords: newKeywordSet("avg", "average", "mean")}
	total   = aggregateFunc{function: "SUM", alias: "total", keywords: newKeywordSet("sum", "total")}
	maximum = aggregateFunc{function: "MAX", alias: "max", keywords: newKeywordSet("max", "maximum", "highest", "largest", "biggest")}
	minimum = aggregateFunc{function: "MIN", alias: "min", keywords: newKeywordSet("min", "minimum", "lowest", "smallest")}

	// groupAggregates is the preference order when a grouped phrase also
	// names an aggregate.
	groupAggregates = []aggregateFunc{average, total, maximum, minimum}
)

var (
	groupByPattern    = regexp.MustCompile(`(?i)\b(?:group(?:ed)?\s+by|per|for each|by each)\s+(\w+)`)
	distinctPattern   = regexp.MustCompile(`(?i)\b(?:distinct|unique|different)\s+(\w+)`)
	rankByPattern     = regexp.MustCompile(`(?i)\bby\s+(\w+)`)
	topWordPattern    = regexp.MustCompile(`(?i)\btop\b`)
	latestPattern     = regexp.MustCompile(`(?i)\b(?:latest|newest|most recent)\s+(\d+)\b`)
	projectionPattern = regexp.MustCompile(`(?i)^(?:show|select|get|display|list|find|fetch|give me)\s+(?:me\s+)?(?:the\s+)?(.+?)\s+(?:from|of|in)\s+\w+`)
)

var recencyHints = []string{"created", "updated", "date", "time"}

// rules is evaluated top to bottom against the lower-cased phrase; the first
// rule whose builder succeeds wins.
var rules = []rule{
	{
		name:      "group_by",
		trigger:   regexp.MustCompile(`\b(?:group(?:ed)?\s+by|per|for each|by each)\s+\w+`),
		aggregate: true,
		build:     buildGroupBy,
	},
	{
		name:      "count",
		trigger:   regexp.MustCompile(`\b(?:count|how many|number of)\b`),
		aggregate: true,
		build:     buildCount,
	},
	{name: "average", trigger: average.keywords.trigger, aggregate: true, build: buildAggregate(average)},
	{name: "sum", trigger: total.keywords.trigger, aggregate: true, build: buildAggregate(total)},
	{name: "max", trigger: maximum.keywords.trigger, aggregate: true, build: buildAggregate(maximum)},
	{name: "min", trigger: minimum.keywords.trigger, aggregate: true, build: buildAggregate(minimum)},
	{
		name:    "distinct",
		trigger: regexp.MustCompile(`\b(?:distinct|unique|different)\s+\w+`),
		build:   buildDistinct,
	},
	{
		name:    "top_n",
		trigger: regexp.MustCompile(`\b(?:top|first|limit)\s+\d+\b`),
		build:   buildTopN,
	},
	{
		name:    "latest",
		trigger: regexp.MustCompile(`\b(?:latest|newest|most recent)\b`),
		build:   buildLatest,
	},
	{
		name:    "show_all",
		trigger: regexp.MustCompile(`\b(?:all|every|everything)\b`),
		build:   buildShowAll,
	},
	{
		name:    "projection",
		trigger: regexp.MustCompile(`^(?:show|select|get|display|list|find|fetch|give me)\s+.+?\s+(?:from|of|in)\s+\w+`),
		build:   buildProjection,
	},
	{
		name:    "order_by",
		trigger: regexp.MustCompile(`\b(?:order(?:ed)?|sort(?:ed)?)\s+by\s+\w+`),
		build:   buildOrdered,
	},
	{
		name:    "filter",
		trigger: regexp.MustCompile(`\b(?:where|whose|which|that|having|with|named|called|is|like|above|below|over|under|exactly|contains?|containing)\b|[<>=]|\b(?:greater|more|less|fewer|equal)\s+(?:than|to)\b`),
		build:   buildFilter,
	},
}

func buildGroupBy(phrase, table string, columns []string) (string, bool) {
	match := groupByPattern.FindStringSubmatch(phrase)
	if match == nil {
		return "", false
	}
	groupColumn, ok := ResolveColumn(match[1], columns)
	if !ok {
		return "", false
	}
	measure := "COUNT(*) as count"
	lowered := strings.ToLower(phrase)
	for _, candidate := range groupAggregates {
		if candidate.keywords.trigger.MatchString(lowered) {
			measure = candidate.expression(extractAggregateColumn(phrase, candidate.keywords, columns))
			break
		}
	}
	return assemble(selectStatement{
		projection: groupColumn + ", " + measure,
		table:      table,
		where:      extractWhere(phrase, columns),
		groupBy:    groupColumn,
		orderBy:    extractOrderBy(phrase, columns),
	}), true
}

func buildCount(phrase, table string, columns []string) (string, bool) {
	return assemble(selectStatement{
		projection: "COUNT(*) as count",
		table:      table,
		where:      extractWhere(phrase, columns),
	}), true
}

func buildAggregate(fn aggregateFunc) builder {
	return func(phrase, table string, columns []string) (string, bool) {
		target := extractAggregateColumn(phrase, fn.keywords, columns)
		return assemble(selectStatement{
			projection: fn.expression(target),
			table:      table,
			where:      extractWhere(phrase, columns),
		}), true
	}
}

func (fn aggregateFunc) expression(column string) string {
	if column == "*" {
		return fn.function + "(*) as " + fn.alias
	}
	return fn.function + "(" + column + ") as " + fn.alias + "_" + column
}

func buildDistinct(phrase, table string, columns []string) (string, bool) {
	match := distinctPattern.FindStringSubmatch(phrase)
	if match == nil {
		return "", false
	}
	column, ok := ResolveColumn(match[1], columns)
	if !ok {
		return "", false
	}
	return assemble(selectStatement{
		projection: "DISTINCT " + column,
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    extractOrderBy(phrase, columns),
	}), true
}

// buildTopN ranks by "by <column>" descending for "top", keeps natural order
// for "first"/"limit" unless an explicit order is given.
func buildTopN(phrase, table string, columns []string) (string, bool) {
	orderBy := extractOrderBy(phrase, columns)
	if orderBy == "" && topWordPattern.MatchString(phrase) {
		if match := rankByPattern.FindStringSubmatch(phrase); match != nil {
			if column, ok := ResolveColumn(match[1], columns); ok {
				orderBy = "ORDER BY " + column + " DESC"
			}
		}
	}
	return assemble(selectStatement{
		projection: "*",
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    orderBy,
		limit:      extractLimit(phrase),
	}), true
}

func buildLatest(phrase, table string, columns []string) (string, bool) {
	column, ok := recencyColumn(columns)
	if !ok {
		return "", false
	}
	limit := extractLimit(phrase)
	if match := latestPattern.FindStringSubmatch(phrase); match != nil {
		limit = match[1]
	}
	return assemble(selectStatement{
		projection: "*",
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    "ORDER BY " + column + " DESC",
		limit:      limit,
	}), true
}

func recencyColumn(columns []string) (string, bool) {
	for _, column := range columns {
		lowered := strings.ToLower(column)
		for _, hint := range recencyHints {
			if strings.Contains(lowered, hint) {
				return column, true
			}
		}
	}
	if column, ok := ResolveColumn("id", columns); ok {
		return column, true
	}
	if len(columns) > 0 {
		return columns[0], true
	}
	return "", false
}

func buildShowAll(phrase, table string, columns []string) (string, bool) {
	return assemble(selectStatement{
		projection: "*",
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    extractOrderBy(phrase, columns),
	}), true
}

func buildProjection(phrase, table string, columns []string) (string, bool) {
	match := projectionPattern.FindStringSubmatch(phrase)
	if match == nil {
		return "", false
	}
	projection := extractProjection(match[1], columns)
	if projection == "*" {
		return "", false
	}
	return assemble(selectStatement{
		projection: projection,
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    extractOrderBy(phrase, columns),
	}), true
}

func buildOrdered(phrase, table string, columns []string) (string, bool) {
	orderBy := extractOrderBy(phrase, columns)
	if orderBy == "" {
		return "", false
	}
	return assemble(selectStatement{
		projection: "*",
		table:      table,
		where:      extractWhere(phrase, columns),
		orderBy:    orderBy,
	}), true
}

func buildFilter(phrase, table string, columns []string) (string, bool) {
	where := extractWhere(phrase, columns)
	if len(where) == 0 {
		return "", false
	}
	return assemble(selectStatement{
		projection: "*",
		table:      table,
		where:      where,
		orderBy:    extractOrderBy(phrase, columns),
	}), true
}
