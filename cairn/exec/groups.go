package exec

import (
	"sort"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// countBatch is a pre-counted batch produced by a Count-strategy scan.
// It only ever reaches the grouped collector, because the Count
// strategy is only chosen for count-all GROUP ALL statements.
type countBatch int

// Groups folds rows into GROUP BY buckets instead of storing each row.
type Groups struct {
	stm     *query.Statement
	buckets map[string]*bucket
}

type bucket struct {
	key  cairn.Array
	aggs []aggState
}

// aggState is the incremental state of one projected field within one
// bucket. Adapted per aggregate function; plain fields keep the first
// value seen.
type aggState struct {
	count  int64
	sum    float64
	sumInt bool
	minv   cairn.Value
	maxv   cairn.Value
	first  cairn.Value
	seen   bool
}

// NewGroups creates the grouped-aggregation collector.
func NewGroups(stm *query.Statement) *Groups {
	return &Groups{stm: stm, buckets: make(map[string]*bucket)}
}

func (g *Groups) Push(_ *Context, stm *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	// Pre-counted batches fold straight into the count aggregates.
	if n, ok := v.(countBatch); ok {
		b := g.bucket(nil)
		for i, f := range stm.Fields {
			if f.Aggregate == "count" {
				b.aggs[i].count += int64(n)
			}
		}
		return nil
	}

	var key cairn.Array
	if !stm.GroupAll() {
		for _, p := range stm.Group.Paths {
			key = append(key, cairn.Pick(v, cairn.ParsePath(p)))
		}
	}
	b := g.bucket(key)
	for i, f := range stm.Fields {
		b.aggs[i].fold(f, v)
	}
	return nil
}

func (g *Groups) bucket(key cairn.Array) *bucket {
	id := cairn.FormatValue(key)
	b, ok := g.buckets[id]
	if !ok {
		b = &bucket{key: key, aggs: make([]aggState, len(g.stm.Fields))}
		g.buckets[id] = b
	}
	return b
}

func (a *aggState) fold(f query.Field, row cairn.Value) {
	switch f.Aggregate {
	case "count":
		a.count++
	case "sum", "mean":
		a.count++
		switch n := cairn.Pick(row, cairn.ParsePath(f.Path)).(type) {
		case int64:
			a.sum += float64(n)
		case int:
			a.sum += float64(n)
		case float64:
			a.sum += n
			a.sumInt = false
			return
		}
		if a.count == 1 {
			a.sumInt = true
		}
	case "min":
		v := cairn.Pick(row, cairn.ParsePath(f.Path))
		if !a.seen || cairn.Compare(v, a.minv) < 0 {
			a.minv = v
		}
		a.seen = true
	case "max":
		v := cairn.Pick(row, cairn.ParsePath(f.Path))
		if !a.seen || cairn.Compare(v, a.maxv) > 0 {
			a.maxv = v
		}
		a.seen = true
	default:
		if !a.seen {
			a.first = cairn.Pick(row, cairn.ParsePath(f.Path))
			a.seen = true
		}
	}
}

func (a *aggState) value(f query.Field) cairn.Value {
	switch f.Aggregate {
	case "count":
		return a.count
	case "sum":
		if a.sumInt {
			return int64(a.sum)
		}
		return a.sum
	case "mean":
		if a.count == 0 {
			return cairn.None
		}
		return a.sum / float64(a.count)
	case "min":
		return a.minv
	case "max":
		return a.maxv
	default:
		return a.first
	}
}

// Output folds every bucket into its final row, ordered by group key
// for determinism.
func (g *Groups) Output(stm *query.Statement) ([]cairn.Value, error) {
	ids := make([]string, 0, len(g.buckets))
	for id := range g.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]cairn.Value, 0, len(ids))
	for _, id := range ids {
		b := g.buckets[id]
		row := cairn.Object{}
		for i, f := range stm.Fields {
			row[fieldName(f)] = b.aggs[i].value(f)
		}
		out = append(out, row)
	}
	g.buckets = make(map[string]*bucket)
	return out, nil
}

func fieldName(f query.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.Aggregate != "" {
		return f.Aggregate
	}
	return f.Path
}

func (g *Groups) Sort() error { return nil }

func (g *Groups) StartLimit(startSkip, start, limit *int) error {
	// Trimming happens after Output rebuilds the collector; nothing
	// to do on the buckets themselves.
	return nil
}

func (g *Groups) Len() int { return len(g.buckets) }

func (g *Groups) Take() ([]cairn.Value, error) {
	return g.Output(g.stm)
}

func (g *Groups) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "Groups"})
}
