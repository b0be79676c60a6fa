package seeder

import (
	"reflect"
	"testing"
	"time"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	fixedNow := time.Date(2026, 2, 19, 7, 30, 0, 0, time.UTC)

	g1 := NewGenerator(42, 10)
	g2 := NewGenerator(42, 10)
	g1.now = func() time.Time { return fixedNow }
	g2.now = func() time.Time { return fixedNow }

	for i := 0; i < 5; i++ {
		r1 := g1.NextRow()
		r2 := g2.NextRow()
		if !reflect.DeepEqual(r1, r2) {
			t.Fatalf("row %d differs: %#v vs %#v", i, r1, r2)
		}
	}
}

func TestGeneratorRowsMatchSchema(t *testing.T) {
	g := NewGenerator(99, 5)
	g.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	columns := map[string]struct{}{}
	for _, column := range Columns {
		columns[column["name"].(string)] = struct{}{}
	}
	for i := 1; i <= 50; i++ {
		row := g.NextRow()
		for name := range row {
			if _, ok := columns[name]; !ok {
				t.Fatalf("row has unknown column %q", name)
			}
		}
		if _, ok := row["id"]; ok {
			t.Fatal("row must leave id to the database")
		}
		if row["occurred_at"] != "2026-01-02 03:04:05" {
			t.Fatalf("occurred_at = %v", row["occurred_at"])
		}
		if g.Generated() != int64(i) {
			t.Fatalf("Generated() = %d, want %d", g.Generated(), i)
		}
	}
}

func TestGeneratorAmountsFollowEventKind(t *testing.T) {
	g := NewGenerator(7, 3)
	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		row := g.NextRow()
		eventType := row["event_type"].(string)
		amount := row["amount"].(float64)
		seen[eventType] = true
		switch eventType {
		case "page_view", "search":
			if amount != 0 {
				t.Fatalf("%s amount = %v, want 0", eventType, amount)
			}
		default:
			if amount <= 0 || amount > 300 {
				t.Fatalf("%s amount = %v out of range", eventType, amount)
			}
		}
	}
	for _, kind := range eventKinds {
		if !seen[kind.name] {
			t.Fatalf("event kind %q never generated", kind.name)
		}
	}
}
