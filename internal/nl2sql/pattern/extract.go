package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	defaultLimit = "100"
	valuePattern = `('[^']*'|"[^"]*"|['"]?[\p{L}\p{N}_.\-@:]+)`
)

type conditionTemplate struct {
	name    string
	pattern *regexp.Regexp
	build   func(match []string, columns []string) (string, bool)
}

// whereTemplates are scanned in this order and each contributes at most one
// condition.
var whereTemplates = []conditionTemplate{
	{
		name:    "greater_than",
		pattern: regexp.MustCompile(`(?i)\b(\w+)\s+(?:is\s+)?(?:greater than|more than|above|over)\s+` + valuePattern),
		build:   comparison(">"),
	},
	{
		name:    "less_than",
		pattern: regexp.MustCompile(`(?i)\b(\w+)\s+(?:is\s+)?(?:less than|fewer than|below|under)\s+` + valuePattern),
		build:   comparison("<"),
	},
	{
		name:    "equality",
		pattern: regexp.MustCompile(`(?i)\b(\w+)\s+(?:is\s+)?(?:equal to|equals|exactly|is)\s+` + valuePattern),
		build:   equality,
	},
	{
		name:    "containment",
		pattern: regexp.MustCompile(`(?i)\b(\w+)\s+(?:containing|contains|contain|like|with)\s+` + valuePattern),
		build:   containment,
	},
	{
		name:    "comparator",
		pattern: regexp.MustCompile(`\b(\w+)\s*(>=|<=|!=|<>|>|<|=)\s*` + valuePattern),
		build:   symbolicComparison,
	},
	{
		name:    "named",
		pattern: regexp.MustCompile(`(?i)\b(?:named|called)\s+` + valuePattern),
		build:   named,
	},
}

// connectiveWords never count as literal values; "age is greater than 5"
// must not turn into age = 'greater'.
var connectiveWords = map[string]struct{}{
	"greater": {}, "more": {}, "less": {}, "fewer": {}, "above": {}, "below": {},
	"over": {}, "under": {}, "equal": {}, "exactly": {}, "like": {}, "not": {},
	"containing": {}, "contains": {}, "contain": {}, "null": {}, "than": {},
}

var (
	numericLiteral   = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
	listSeparator    = regexp.MustCompile(`(?i)\s*(?:,|\band\b)\s*`)
	orderByPattern   = regexp.MustCompile(`(?i)\b(?:order(?:ed)?|sort(?:ed)?)\s+by\s+(\w+)(?:\s+(asc|ascending|desc|descending)\b)?`)
	limitPattern     = regexp.MustCompile(`(?i)\b(?:limit|first|top)\s+(\d+)\b`)
	numericHintNames = []string{"id", "age", "salary", "price", "amount"}
)

// extractWhere returns every condition the templates can resolve against
// columns, in template order. An empty result means no usable condition.
func extractWhere(phrase string, columns []string) []string {
	conditions := make([]string, 0, len(whereTemplates))
	seen := map[string]struct{}{}
	for _, template := range whereTemplates {
		eachMatch(template.pattern, phrase, func(match []string) bool {
			condition, ok := template.build(match, columns)
			if !ok {
				return false
			}
			if _, dup := seen[condition]; !dup {
				seen[condition] = struct{}{}
				conditions = append(conditions, condition)
			}
			return true
		})
	}
	return conditions
}

// eachMatch visits matches of pattern until visit returns true. Scanning
// resumes right after the first capture group, so in "users with name
// containing jo" the word "name" can still start a match after "users with
// name" was rejected.
func eachMatch(pattern *regexp.Regexp, text string, visit func(match []string) bool) {
	for offset := 0; offset < len(text); {
		loc := pattern.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return
		}
		match := make([]string, len(loc)/2)
		for i := range match {
			if loc[2*i] >= 0 {
				match[i] = text[offset+loc[2*i] : offset+loc[2*i+1]]
			}
		}
		if visit(match) {
			return
		}
		next := loc[1]
		if len(loc) > 3 && loc[3] > 0 {
			next = loc[3]
		}
		if next <= 0 {
			next = 1
		}
		offset += next
	}
}

func comparison(operator string) func(match []string, columns []string) (string, bool) {
	return func(match []string, columns []string) (string, bool) {
		if isConnective(match[2]) {
			return "", false
		}
		column, ok := ResolveColumn(match[1], columns)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%s %s %s", column, operator, sqlLiteral(match[2])), true
	}
}

func equality(match []string, columns []string) (string, bool) {
	return comparison("=")(match, columns)
}

func containment(match []string, columns []string) (string, bool) {
	if isConnective(match[2]) {
		return "", false
	}
	column, ok := ResolveColumn(match[1], columns)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s LIKE %s", column, quoteString("%"+unquote(match[2])+"%")), true
}

func symbolicComparison(match []string, columns []string) (string, bool) {
	column, ok := ResolveColumn(match[1], columns)
	if !ok {
		return "", false
	}
	operator := match[2]
	if operator == "<>" {
		operator = "!="
	}
	return fmt.Sprintf("%s %s %s", column, operator, sqlLiteral(match[3])), true
}

func named(match []string, columns []string) (string, bool) {
	column, ok := ResolveColumn("name", columns)
	if !ok {
		column, ok = ResolveColumn("title", columns)
	}
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s = %s", column, quoteString(unquote(match[1]))), true
}

// extractProjection resolves a comma separated column list. It returns "*"
// when no token names a column.
func extractProjection(fragment string, columns []string) string {
	selected := make([]string, 0)
	for _, token := range listSeparator.Split(fragment, -1) {
		token = strings.TrimSpace(unquote(strings.TrimSpace(token)))
		if token == "" {
			continue
		}
		column, ok := ResolveColumn(token, columns)
		if !ok || containsString(selected, column) {
			continue
		}
		selected = append(selected, column)
	}
	if len(selected) == 0 {
		return "*"
	}
	return strings.Join(selected, ", ")
}

func extractOrderBy(phrase string, columns []string) string {
	match := orderByPattern.FindStringSubmatch(phrase)
	if match == nil {
		return ""
	}
	column, ok := ResolveColumn(match[1], columns)
	if !ok {
		return ""
	}
	direction := "ASC"
	if strings.HasPrefix(strings.ToLower(match[2]), "desc") {
		direction = "DESC"
	}
	return "ORDER BY " + column + " " + direction
}

// keywordSet is an aggregate keyword family such as {avg, average, mean}.
type keywordSet struct {
	words    []string
	trigger  *regexp.Regexp
	follower *regexp.Regexp
}

func newKeywordSet(words ...string) keywordSet {
	alternation := strings.Join(words, "|")
	return keywordSet{
		words:    words,
		trigger:  regexp.MustCompile(`\b(?:` + alternation + `)\b`),
		follower: regexp.MustCompile(`(?i)\b(?:` + alternation + `)\s+(?:(?:of|the|all)\s+)*(\w+)`),
	}
}

// extractAggregateColumn always names a column: the word after a keyword,
// else the first column with a numeric-sounding name, else the first column.
func extractAggregateColumn(phrase string, keywords keywordSet, columns []string) string {
	if match := keywords.follower.FindStringSubmatch(phrase); match != nil {
		if column, ok := ResolveColumn(match[1], columns); ok {
			return column
		}
	}
	for _, column := range columns {
		lowered := strings.ToLower(column)
		for _, hint := range numericHintNames {
			if strings.Contains(lowered, hint) {
				return column
			}
		}
	}
	if len(columns) > 0 {
		return columns[0]
	}
	return "*"
}

func extractLimit(phrase string) string {
	if match := limitPattern.FindStringSubmatch(phrase); match != nil {
		return match[1]
	}
	return defaultLimit
}

func sqlLiteral(raw string) string {
	if isQuoted(raw) {
		return quoteString(unquote(raw))
	}
	raw = unquote(raw)
	if numericLiteral.MatchString(raw) {
		return raw
	}
	return quoteString(raw)
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func isQuoted(raw string) bool {
	if len(raw) < 2 {
		return false
	}
	first, last := raw[0], raw[len(raw)-1]
	return (first == '\'' || first == '"') && first == last
}

// unquote strips a matching quote pair, or a dangling opening quote as in
// "name is 'a".
func unquote(raw string) string {
	if isQuoted(raw) {
		return raw[1 : len(raw)-1]
	}
	return strings.TrimLeft(raw, `'"`)
}

func isConnective(raw string) bool {
	_, ok := connectiveWords[strings.ToLower(unquote(raw))]
	return ok
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
