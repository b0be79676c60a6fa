package query

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want Kind
	}{
		{"SELECT * FROM users", KindRows},
		{"  select 1", KindRows},
		{"(SELECT 1)", KindRows},
		{"WITH t AS (SELECT 1) SELECT * FROM t", KindRows},
		{"pragma table_info(users)", KindRows},
		{"EXPLAIN QUERY PLAN SELECT 1", KindRows},
		{"INSERT INTO users (name) VALUES ('a')", KindExec},
		{"UPDATE users SET age = 1", KindExec},
		{"DELETE FROM users", KindExec},
		{"CREATE TABLE t (id INTEGER)", KindExec},
		{"SELECTED_COLUMNS", KindExec},
		{"", KindExec},
	}
	for _, tc := range tests {
		if got := Classify(tc.sql); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.sql, got, tc.want)
		}
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons(" SELECT 1 ; ;; "); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent() = %q", got)
	}
}

func TestNormalizeValues(t *testing.T) {
	got := NormalizeValues([]any{[]byte("abc"), int64(1), nil})
	want := []any{"abc", int64(1), nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeValues() = %#v, want %#v", got, want)
	}
}
