package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Columns is the schema of the demo table. The id column is filled in by
// SQLite.
var Columns = []map[string]any{
	{"name": "id", "type": "INTEGER", "primary_key": true},
	{"name": "user_id", "type": "TEXT", "not_null": true},
	{"name": "event_type", "type": "TEXT", "not_null": true},
	{"name": "amount", "type": "REAL"},
	{"name": "country", "type": "TEXT"},
	{"name": "device", "type": "TEXT"},
	{"name": "occurred_at", "type": "DATETIME"},
}

// eventKind is one kind of shop event with its relative frequency and the
// amount range it carries. Kinds without a range record an amount of 0.
type eventKind struct {
	name     string
	weight   int
	minSpend float64
	maxSpend float64
}

var eventKinds = []eventKind{
	{name: "page_view", weight: 55},
	{name: "search", weight: 20},
	{name: "add_to_cart", weight: 13, minSpend: 5, maxSpend: 125},
	{name: "checkout", weight: 9, minSpend: 15, maxSpend: 255},
	{name: "purchase", weight: 3, minSpend: 20, maxSpend: 300},
}

var (
	countries = []string{"US", "DE", "GB", "IN", "JP", "BR"}
	devices   = []string{"desktop", "mobile", "tablet"}
)

// Generator produces reproducible rows for a given seed.
type Generator struct {
	rnd         *rand.Rand
	users       int
	totalWeight int
	count       int64
	now         func() time.Time
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	total := 0
	for _, kind := range eventKinds {
		total += kind.weight
	}
	return &Generator{
		rnd:         rand.New(rand.NewSource(seed)),
		users:       max(userCardinality, 1),
		totalWeight: total,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NextRow returns the column values of one synthetic shop event.
func (g *Generator) NextRow() map[string]any {
	g.count++
	kind := g.kind()
	amount := 0.0
	if kind.maxSpend > 0 {
		amount = math.Round((kind.minSpend+g.rnd.Float64()*(kind.maxSpend-kind.minSpend))*100) / 100
	}
	return map[string]any{
		"user_id":     fmt.Sprintf("user-%04d", g.rnd.Intn(g.users)+1),
		"event_type":  kind.name,
		"amount":      amount,
		"country":     countries[g.rnd.Intn(len(countries))],
		"device":      devices[g.rnd.Intn(len(devices))],
		"occurred_at": g.now().Format(time.DateTime),
	}
}

// Generated is the number of rows produced so far.
func (g *Generator) Generated() int64 {
	return g.count
}

func (g *Generator) kind() eventKind {
	pick := g.rnd.Intn(g.totalWeight)
	for _, kind := range eventKinds {
		if pick < kind.weight {
			return kind
		}
		pick -= kind.weight
	}
	return eventKinds[len(eventKinds)-1]
}
