package exec

import (
	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// Results is the collector strategy accumulating a statement's output
// rows. A collector is chosen exactly once per execution, is
// append-only until Take, and Take drains and resets it.
type Results interface {
	// Push accepts one output value.
	Push(ctx *Context, stm *query.Statement, rs plan.RecordStrategy, v cairn.Value) error
	// Sort applies the statement ordering; a no-op for collectors that
	// maintain order incrementally.
	Sort() error
	// StartLimit applies the final START/LIMIT trim. startSkip is
	// non-nil when START was already consumed at the storage level.
	StartLimit(startSkip, start, limit *int) error
	// Len is the number of rows currently held.
	Len() int
	// Take drains the collector and resets it.
	Take() ([]cairn.Value, error)
	// Explain describes the strategy for diagnostics.
	Explain(e *Explanation)
}

// prepareResults selects the collector for a statement, before any
// record flows.
func prepareResults(ctx *Context, stm *query.Statement, start, limit *int) Results {
	var r Results
	switch {
	case len(stm.Fields) > 0 && stm.HasGroup():
		r = NewGroups(stm)
	case stm.Tempfiles && ctx.Options.TempDir != "":
		r = NewFileCollector(ctx.Options.TempDir, orderTerms(stm))
	case stm.Order != nil && stm.Order.Random:
		r = NewMemoryRandom()
	case stm.Order != nil && limit != nil && len(stm.Split) == 0 &&
		effectiveLimit(start, limit) <= ctx.Options.MaxOrderedLimitQueueSize:
		r = NewMemoryOrderedLimit(effectiveLimit(start, limit), stm.Order.Terms)
	case stm.Order != nil:
		r = NewMemoryOrdered(stm.Order.Terms)
	default:
		r = NewMemory()
	}
	if ctx.Events != nil {
		e := &Explanation{}
		r.Explain(e)
		ctx.event(annotations.CollectorSelected, map[string]interface{}{
			"collector": e.rows[len(e.rows)-1].Detail["type"],
		})
	}
	return r
}

func effectiveLimit(start, limit *int) int {
	n := *limit
	if start != nil {
		n += *start
	}
	return n
}

func orderTerms(stm *query.Statement) []query.OrderTerm {
	if stm.Order == nil || stm.Order.Random {
		return nil
	}
	return stm.Order.Terms
}

// trimStartLimit is the shared post-hoc START/LIMIT application.
func trimStartLimit(vals []cairn.Value, startSkip, start, limit *int) []cairn.Value {
	// When START was consumed at the storage level, only LIMIT
	// remains.
	if startSkip == nil && start != nil {
		if *start >= len(vals) {
			return vals[:0]
		}
		vals = vals[*start:]
	}
	if limit != nil && *limit < len(vals) {
		vals = vals[:*limit]
	}
	return vals
}

// Memory is the plain unordered collector.
type Memory struct {
	vals []cairn.Value
}

// NewMemory creates the unordered in-memory collector.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Push(_ *Context, _ *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	m.vals = append(m.vals, v)
	return nil
}

func (m *Memory) Sort() error { return nil }

func (m *Memory) StartLimit(startSkip, start, limit *int) error {
	m.vals = trimStartLimit(m.vals, startSkip, start, limit)
	return nil
}

func (m *Memory) Len() int { return len(m.vals) }

func (m *Memory) Take() ([]cairn.Value, error) {
	out := m.vals
	m.vals = nil
	return out, nil
}

func (m *Memory) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "Memory"})
}
