package exec

import (
	"container/heap"
	"math/rand"
	"sort"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// compareOrder orders two values by a list of ORDER BY terms.
func compareOrder(terms []query.OrderTerm, a, b cairn.Value) int {
	for _, t := range terms {
		c := cairn.Compare(cairn.Pick(a, cairn.ParsePath(t.Path)), cairn.Pick(b, cairn.ParsePath(t.Path)))
		if t.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// MemoryOrdered collects everything and performs a full in-memory sort
// when Sort is called.
type MemoryOrdered struct {
	terms []query.OrderTerm
	vals  []cairn.Value
}

// NewMemoryOrdered creates the full in-memory ordered collector.
func NewMemoryOrdered(terms []query.OrderTerm) *MemoryOrdered {
	return &MemoryOrdered{terms: terms}
}

func (m *MemoryOrdered) Push(_ *Context, _ *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	m.vals = append(m.vals, v)
	return nil
}

func (m *MemoryOrdered) Sort() error {
	sort.SliceStable(m.vals, func(i, j int) bool {
		return compareOrder(m.terms, m.vals[i], m.vals[j]) < 0
	})
	return nil
}

func (m *MemoryOrdered) StartLimit(startSkip, start, limit *int) error {
	m.vals = trimStartLimit(m.vals, startSkip, start, limit)
	return nil
}

func (m *MemoryOrdered) Len() int { return len(m.vals) }

func (m *MemoryOrdered) Take() ([]cairn.Value, error) {
	out := m.vals
	m.vals = nil
	return out, nil
}

func (m *MemoryOrdered) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "MemoryOrdered"})
}

// MemoryOrderedLimit keeps only the top start+limit rows in a bounded
// priority queue, avoiding materialising the full result set. The
// heap root is the worst retained row, so a better candidate replaces
// it in O(log k).
type MemoryOrderedLimit struct {
	h   boundedHeap
	cap int
}

// NewMemoryOrderedLimit creates the bounded top-K collector.
func NewMemoryOrderedLimit(capacity int, terms []query.OrderTerm) *MemoryOrderedLimit {
	return &MemoryOrderedLimit{cap: capacity, h: boundedHeap{terms: terms}}
}

type heapEntry struct {
	val cairn.Value
	// seq preserves push order for stable tie-breaks.
	seq int
}

type boundedHeap struct {
	terms   []query.OrderTerm
	entries []heapEntry
	seq     int
}

func (h boundedHeap) Len() int { return len(h.entries) }

// Less puts the worst entry at the root (max-heap over the ordering).
func (h boundedHeap) Less(i, j int) bool {
	c := compareOrder(h.terms, h.entries[i].val, h.entries[j].val)
	if c != 0 {
		return c > 0
	}
	return h.entries[i].seq > h.entries[j].seq
}

func (h boundedHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *boundedHeap) Push(x interface{}) { h.entries = append(h.entries, x.(heapEntry)) }

func (h *boundedHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	x := old[n-1]
	h.entries = old[:n-1]
	return x
}

var _ heap.Interface = (*boundedHeap)(nil)

func (m *MemoryOrderedLimit) Push(_ *Context, _ *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	// LIMIT 0 retains nothing.
	if m.cap == 0 {
		return nil
	}
	entry := heapEntry{val: v, seq: m.h.seqNext()}
	if m.h.Len() < m.cap {
		heap.Push(&m.h, entry)
		return nil
	}
	// Full: replace the worst retained row when the candidate beats it.
	worst := m.h.entries[0]
	c := compareOrder(m.h.terms, entry.val, worst.val)
	if c < 0 || (c == 0 && entry.seq < worst.seq) {
		m.h.entries[0] = entry
		heap.Fix(&m.h, 0)
	}
	return nil
}

// seqNext issues monotonically increasing sequence numbers.
func (h *boundedHeap) seqNext() int {
	h.seq++
	return h.seq
}

func (m *MemoryOrderedLimit) Sort() error {
	// Drain the heap worst-first, filling the slice back to front.
	out := make([]heapEntry, m.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&m.h).(heapEntry)
	}
	m.h.entries = out
	return nil
}

func (m *MemoryOrderedLimit) StartLimit(startSkip, start, limit *int) error {
	vals := make([]cairn.Value, len(m.h.entries))
	for i, e := range m.h.entries {
		vals[i] = e.val
	}
	vals = trimStartLimit(vals, startSkip, start, limit)
	m.h.entries = m.h.entries[:0]
	for i, v := range vals {
		m.h.entries = append(m.h.entries, heapEntry{val: v, seq: i})
	}
	return nil
}

func (m *MemoryOrderedLimit) Len() int { return m.h.Len() }

func (m *MemoryOrderedLimit) Take() ([]cairn.Value, error) {
	out := make([]cairn.Value, len(m.h.entries))
	for i, e := range m.h.entries {
		out[i] = e.val
	}
	m.h.entries = nil
	return out, nil
}

func (m *MemoryOrderedLimit) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "MemoryOrderedLimit", "capacity": int64(m.cap)})
}

// MemoryRandom implements ORDER BY RAND(): rows are collected and
// shuffled on Sort.
type MemoryRandom struct {
	vals []cairn.Value
}

// NewMemoryRandom creates the random-order collector.
func NewMemoryRandom() *MemoryRandom { return &MemoryRandom{} }

func (m *MemoryRandom) Push(_ *Context, _ *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	m.vals = append(m.vals, v)
	return nil
}

func (m *MemoryRandom) Sort() error {
	rand.Shuffle(len(m.vals), func(i, j int) {
		m.vals[i], m.vals[j] = m.vals[j], m.vals[i]
	})
	return nil
}

func (m *MemoryRandom) StartLimit(startSkip, start, limit *int) error {
	m.vals = trimStartLimit(m.vals, startSkip, start, limit)
	return nil
}

func (m *MemoryRandom) Len() int { return len(m.vals) }

func (m *MemoryRandom) Take() ([]cairn.Value, error) {
	out := m.vals
	m.vals = nil
	return out, nil
}

func (m *MemoryRandom) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "MemoryRandom"})
}
