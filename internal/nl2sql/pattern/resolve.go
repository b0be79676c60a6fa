package pattern

import "strings"

// columnPredicate reports whether a lower-cased column name matches a
// lower-cased user word.
type columnPredicate func(column, word string) bool

func exactMatch(column, word string) bool {
	return column == word
}

func columnContainsWord(column, word string) bool {
	return strings.Contains(column, word)
}

func wordContainsColumn(column, word string) bool {
	return column != "" && strings.Contains(word, column)
}

// resolvePasses run in this order; the first pass with a hit wins.
var resolvePasses = []columnPredicate{
	exactMatch,
	columnContainsWord,
	wordContainsColumn,
}

// ResolveColumn maps a user-supplied word to one of columns. It tries an
// exact case-insensitive match, then a column containing the word, then a
// column contained in the word; within a pass the first column in list order
// wins. ok is false when nothing matches and callers drop whatever the word
// was meant to feed.
func ResolveColumn(word string, columns []string) (string, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", false
	}
	for _, pass := range resolvePasses {
		if column, ok := firstColumn(columns, word, pass); ok {
			return column, true
		}
	}
	return "", false
}

func firstColumn(columns []string, word string, matches columnPredicate) (string, bool) {
	for _, column := range columns {
		if matches(strings.ToLower(column), word) {
			return column, true
		}
	}
	return "", false
}
