// Package query defines the resolved statement shape consumed by the
// execution engine: targets, projection, WHERE/GROUP/ORDER/SPLIT/
// START/LIMIT/FETCH clauses, and the opaque expression handle. It is
// pure data; parsing and expression evaluation live outside the core.
package query

import (
	"fmt"

	"github.com/cairndb/cairn/cairn"
)

// Kind is the statement verb. The engine only cares about the broad
// read-vs-write shape, but the full set is kept for preparation glue.
type Kind int

const (
	Select Kind = iota
	Create
	Update
	Upsert
	Delete
	Insert
	Relate
)

func (k Kind) String() string {
	switch k {
	case Select:
		return "SELECT"
	case Create:
		return "CREATE"
	case Update:
		return "UPDATE"
	case Upsert:
		return "UPSERT"
	case Delete:
		return "DELETE"
	case Insert:
		return "INSERT"
	case Relate:
		return "RELATE"
	}
	return "UNKNOWN"
}

// Expr is an opaque expression handle. The engine never evaluates
// expressions itself; it hands them to an Evaluator or to the
// per-record processor.
type Expr interface {
	fmt.Stringer
}

// Literal is the one expression form the engine constructs directly:
// an already-resolved value. External layers may supply richer Expr
// implementations; the engine only needs String for diagnostics.
type Literal struct {
	Value cairn.Value
}

func (l Literal) String() string { return cairn.FormatValue(l.Value) }

// OrderTerm is one ORDER BY term over a dotted field path.
type OrderTerm struct {
	Path string
	Desc bool
}

// Ordering is the ORDER BY clause: either RAND() or a list of terms.
type Ordering struct {
	Random bool
	Terms  []OrderTerm
}

// Field is one projected field. A field with an Aggregate function is
// folded per GROUP BY bucket; a bare count has an empty Path.
type Field struct {
	Alias     string
	Path      string
	Aggregate string // "", "count", "sum", "min", "max", "mean"
}

// Grouping is the GROUP BY clause. GroupAll collapses the whole result
// set into a single bucket.
type Grouping struct {
	All   bool
	Paths []string
}

// ExplainMode selects EXPLAIN output instead of (or in addition to)
// iteration.
type ExplainMode int

const (
	ExplainOff ExplainMode = iota
	ExplainNormal
	ExplainFull
)

// Statement is a fully resolved statement handed to the iterator. The
// target set itself is delivered separately as ingested iterables.
type Statement struct {
	Kind   Kind
	Fields []Field
	Cond   Expr
	Group  *Grouping
	Order  *Ordering
	Split  []string
	Start  Expr
	Limit  Expr
	Fetch  []string

	// Parallel requests the concurrent execution mode.
	Parallel bool
	// Tempfiles allows the disk-spilled collector when a temp
	// directory is configured.
	Tempfiles bool
	// Guaranteed statements re-run a held-back yield when the result
	// set is empty (UPSERT-style semantics).
	Guaranteed bool
	Explain    ExplainMode
}

// IsSelect reports whether this is a read statement.
func (s *Statement) IsSelect() bool { return s.Kind == Select }

// Writeable reports whether the statement mutates records. Mutating
// statements always need record values to maintain index entries.
func (s *Statement) Writeable() bool { return s.Kind != Select }

// IsDeferable reports whether record existence checks are deferred to
// write time (CREATE-style "error if exists" semantics).
func (s *Statement) IsDeferable() bool { return s.Kind == Create }

// CountAllOnly reports whether every projected field is a bare count,
// meaning records never need to be decoded at all.
func (s *Statement) CountAllOnly() bool {
	if len(s.Fields) == 0 {
		return false
	}
	for _, f := range s.Fields {
		if f.Aggregate != "count" || f.Path != "" {
			return false
		}
	}
	return true
}

// IsLimitOneOrZero reports whether the LIMIT clause is literally 0 or
// 1, the shape single-record statements require.
func (s *Statement) IsLimitOneOrZero() bool {
	l, ok := s.Limit.(Literal)
	if !ok {
		return false
	}
	switch n := l.Value.(type) {
	case int:
		return n == 0 || n == 1
	case int64:
		return n == 0 || n == 1
	}
	return false
}

// GroupAll reports whether grouping collapses to a single bucket.
func (s *Statement) GroupAll() bool { return s.Group != nil && s.Group.All }

// HasGroup reports whether any GROUP BY clause is present.
func (s *Statement) HasGroup() bool { return s.Group != nil }

// HasOrder reports whether any ORDER BY clause is present.
func (s *Statement) HasOrder() bool { return s.Order != nil }

// OrderFirstIDDesc reports whether the first ORDER BY term is the
// record identity field descending, which is the one shape a backward
// storage scan can satisfy directly.
func (s *Statement) OrderFirstIDDesc() bool {
	return s.Order != nil && !s.Order.Random &&
		len(s.Order.Terms) > 0 && s.Order.Terms[0].Path == "id" && s.Order.Terms[0].Desc
}
