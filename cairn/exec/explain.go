package exec

import (
	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// Explanation accumulates the EXPLAIN description of one statement
// execution: the sources, the collector strategy, the record strategy,
// and any pushdown parameters. Diagnostics only, never correctness.
type Explanation struct {
	rows []explainRow
}

type explainRow struct {
	Operation string
	Detail    cairn.Object
}

// Add appends one operation description.
func (e *Explanation) Add(op string, detail cairn.Object) {
	e.rows = append(e.rows, explainRow{Operation: op, Detail: detail})
}

// AddRecordStrategy records the statement-wide record strategy.
func (e *Explanation) AddRecordStrategy(rs plan.RecordStrategy) {
	e.Add("RecordStrategy", cairn.Object{"type": rs.String()})
}

// AddStartLimit records the pushdown parameters in effect.
func (e *Explanation) AddStartLimit(startSkip, cancelOnLimit *int) {
	detail := cairn.Object{}
	if startSkip != nil {
		detail["start_skip"] = int64(*startSkip)
	}
	if cancelOnLimit != nil {
		detail["cancel_on_limit"] = int64(*cancelOnLimit)
	}
	e.Add("StartLimitStrategy", detail)
}

// AddFetch records the number of rows a FETCH pass would touch.
func (e *Explanation) AddFetch(count int) {
	e.Add("Fetch", cairn.Object{"count": int64(count)})
}

// Output renders the explanation as result rows.
func (e *Explanation) Output() []cairn.Value {
	out := make([]cairn.Value, len(e.rows))
	for i, r := range e.rows {
		out[i] = cairn.Object{"operation": r.Operation, "detail": r.Detail}
	}
	return out
}

// execPlan decides whether a statement actually iterates and carries
// the optional explanation alongside.
type execPlan struct {
	doIterate   bool
	explanation *Explanation
}

func newExecPlan(stm *query.Statement, entries []Iterable, results Results) execPlan {
	p := execPlan{doIterate: true}
	switch stm.Explain {
	case query.ExplainOff:
		return p
	case query.ExplainNormal:
		p.doIterate = false
	case query.ExplainFull:
		// FULL still iterates so counts can be reported.
	}
	p.explanation = &Explanation{}
	for _, i := range entries {
		p.explanation.Add("Iterate", cairn.Object{"source": i.String()})
	}
	results.Explain(p.explanation)
	return p
}
