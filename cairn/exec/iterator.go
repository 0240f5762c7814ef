package exec

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// Iterator executes one statement: iterables are ingested, executed
// sequentially or in parallel, per-record computation is delegated to
// the Processor, and the survivors flow into the selected collector.
// An Iterator is single-use; Clone produces a fresh one sharing the
// ingested sources.
type Iterator struct {
	entries []Iterable

	results Results
	can     *Canceller

	// Resolved clause values for this run.
	start *int
	limit *int

	// startSkip is the number of records still to be dropped at the
	// storage level. Nil when the skip could not be pushed down.
	startSkip *int
	skipMu    sync.Mutex

	// cancelThreshold stops iteration once the collector holds enough
	// rows to satisfy START+LIMIT. Nil disables the short-circuit.
	cancelThreshold *int

	// guaranteedYield is a held-back yield source that only runs when
	// everything else produced nothing.
	guaranteedYield *Iterable

	errMu sync.Mutex
	err   error
}

// NewIterator creates an empty iterator.
func NewIterator() *Iterator { return &Iterator{} }

// Ingest adds one data source.
func (t *Iterator) Ingest(i Iterable) { t.entries = append(t.entries, i) }

// Clone returns a fresh iterator over the same ingested sources, with
// no execution state.
func (t *Iterator) Clone() *Iterator {
	c := NewIterator()
	c.entries = append([]Iterable(nil), t.entries...)
	return c
}

// Output runs the statement to completion and returns its rows. For
// EXPLAIN statements the rows describe the plan instead.
func (t *Iterator) Output(ctx *Context, stm *query.Statement) ([]cairn.Value, error) {
	began := time.Now()
	ctx.event(annotations.StatementInvoked, map[string]interface{}{"statement": stm.Kind.String()})
	vals, err := t.output(ctx, stm)
	if err != nil {
		ctx.Events.AddTiming(annotations.StatementFailed, began, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	ctx.Events.AddTiming(annotations.StatementCompleted, began, map[string]interface{}{"rows": len(vals)})
	return vals, nil
}

func (t *Iterator) output(ctx *Context, stm *query.Statement) ([]cairn.Value, error) {
	if ctx.Txn == nil {
		return nil, &SetupError{Msg: "iterator requires a transaction"}
	}
	if ctx.Processor == nil {
		ctx.Processor = ValueProcessor{}
	}

	var err error
	if t.start, err = evalClause(ctx, stm.Start, "START"); err != nil {
		return nil, err
	}
	if t.limit, err = evalClause(ctx, stm.Limit, "LIMIT"); err != nil {
		return nil, err
	}

	t.results = prepareResults(ctx, stm, t.start, t.limit)
	t.computeStartLimit(ctx, stm)

	ep := newExecPlan(stm, t.entries, t.results)
	if ep.explanation != nil {
		if len(t.entries) > 0 {
			ep.explanation.AddRecordStrategy(t.entries[0].Strategy)
		}
		if t.startSkip != nil || t.cancelThreshold != nil {
			ep.explanation.AddStartLimit(t.startSkip, t.cancelThreshold)
		}
	}

	if ep.doIterate {
		if err := t.iterate(ctx, stm); err != nil {
			return nil, err
		}
	}

	if stm.Explain != query.ExplainOff {
		if ep.explanation != nil && ep.doIterate {
			ep.explanation.AddFetch(t.results.Len())
		}
		t.results.Take()
		return ep.explanation.Output(), nil
	}

	if len(stm.Split) > 0 {
		return t.outputSplit(ctx, stm)
	}

	if _, ok := t.results.(*Groups); ok {
		ctx.event(annotations.GroupsFolded, map[string]interface{}{"groups": t.results.Len()})
	}
	if err := t.results.Sort(); err != nil {
		return nil, err
	}
	if stm.HasOrder() {
		ctx.event(annotations.ResultsSorted, map[string]interface{}{"rows": t.results.Len()})
	}
	if err := t.results.StartLimit(t.startSkip, t.start, t.limit); err != nil {
		return nil, err
	}
	if t.start != nil || t.limit != nil {
		ctx.event(annotations.ResultsTrimmed, map[string]interface{}{"rows": t.results.Len()})
	}
	vals, err := t.results.Take()
	if err != nil {
		return nil, err
	}
	return t.outputFetch(ctx, stm, vals)
}

// iterate drives every ingested source, honouring the parallel flag,
// then falls back to a guaranteed yield if nothing was produced.
func (t *Iterator) iterate(ctx *Context, stm *query.Statement) error {
	t.can = &Canceller{}
	ctx = ctx.withCanceller(t.can)

	if stm.Guaranteed {
		t.holdBackYield()
	}

	run := func(ctx *Context) error {
		if stm.Parallel && ctx.Store != nil {
			return t.iterateParallel(ctx, stm)
		}
		return t.iterateSequential(ctx, stm)
	}

	// Staged plans run every stage over the same sources in order.
	if ctx.Planner != nil && ctx.Planner.Staged() {
		for {
			s, ok := ctx.Planner.NextStage()
			if !ok {
				break
			}
			if err := run(ctx.WithStage(s)); err != nil {
				return err
			}
		}
	} else if err := run(ctx); err != nil {
		return err
	}

	if err := t.takeErr(); err != nil {
		// A fatal record error discards everything collected so far.
		t.results.Take()
		return err
	}

	if t.guaranteedYield != nil && t.results.Len() == 0 {
		coll := &syncCollector{ctx: ctx, stm: stm, ite: t}
		if err := t.guaranteedYield.iterate(ctx, stm, ctx.Txn, t, coll); err != nil {
			return err
		}
		return t.takeErr()
	}
	return nil
}

func (t *Iterator) iterateSequential(ctx *Context, stm *query.Statement) error {
	var coll recordCollector = &syncCollector{ctx: ctx, stm: stm, ite: t}
	if dis := NewSyncDistinct(ctx.Planner); dis != nil {
		coll = &syncDistinctCollector{coll: coll.(*syncCollector), dis: dis}
	}
	for _, e := range t.entries {
		if ctx.Cancelled() {
			break
		}
		if err := e.iterate(ctx, stm, ctx.Txn, t, coll); err != nil {
			ctx.event(annotations.ErrorBackend, map[string]interface{}{"error": err.Error()})
			return err
		}
	}
	return nil
}

// holdBackYield removes yield sources from the run set, keeping the
// first as the fallback.
func (t *Iterator) holdBackYield() {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.Kind == IterYield && t.guaranteedYield == nil {
			y := e
			t.guaranteedYield = &y
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// computeStartLimit decides the pushdown parameters before iteration.
func (t *Iterator) computeStartLimit(ctx *Context, stm *query.Statement) {
	if t.canStartSkip(ctx, stm) {
		skip := *t.start
		t.startSkip = &skip
	}
	if t.canCancelOnLimit(ctx, stm) {
		threshold := *t.limit
		// Without a storage-level skip, START rows are trimmed after
		// collection, so they must be collected first.
		if t.startSkip == nil && t.start != nil {
			threshold += *t.start
		}
		t.cancelThreshold = &threshold
	}
	if t.startSkip != nil || t.cancelThreshold != nil {
		ctx.event(annotations.PushdownApplied, map[string]interface{}{
			"start_skip":      t.startSkip != nil,
			"cancel_on_limit": t.cancelThreshold != nil,
		})
	}
}

// canStartSkip reports whether START can be consumed at the storage
// level. Only a single skippable source qualifies: merging several
// sources makes a per-source skip meaningless. A WHERE clause is
// tolerated only when the source is an index iterator that fully
// expresses it, and an ORDER BY only when that iterator natively
// yields the requested order. Per-record permissions may reject rows,
// so they disable the skip too.
func (t *Iterator) canStartSkip(ctx *Context, stm *query.Statement) bool {
	if t.start == nil || *t.start == 0 {
		return false
	}
	if stm.HasGroup() || len(stm.Split) > 0 {
		return false
	}
	if len(t.entries) != 1 {
		return false
	}
	e := t.entries[0]
	if !e.skippable() {
		return false
	}
	if stm.Cond != nil && !indexCovers(ctx, e, stm.Cond) {
		return false
	}
	if stm.Order != nil && !indexOrders(ctx, e, stm.Order) {
		return false
	}
	if ctx.Planner != nil {
		if ctx.Planner.AnySpecificPermission() {
			return false
		}
		if ctx.Planner.RequiresDistinct() {
			return false
		}
	}
	return true
}

// indexCovers reports whether the source is an index iterator that
// fully expresses the WHERE clause, leaving no residual filtering.
func indexCovers(ctx *Context, e Iterable, cond query.Expr) bool {
	return e.Kind == IterIndex && ctx.Planner != nil &&
		ctx.Planner.IsIteratorCondition(e.Ref, cond)
}

// indexOrders reports whether the source is an index iterator whose
// natural order is the requested order.
func indexOrders(ctx *Context, e Iterable, o *query.Ordering) bool {
	return !o.Random && e.Kind == IterIndex &&
		ctx.Planner != nil && ctx.Planner.IsOrder(e.Ref)
}

// skippable reports whether the source can drop records before
// processing without changing results.
func (i Iterable) skippable() bool {
	switch i.Kind {
	case IterTable, IterRange, IterIndex:
		return true
	}
	return false
}

// canCancelOnLimit reports whether iteration can stop as soon as the
// collector is full. Grouping needs the complete set; so does sorting,
// unless a single index source already yields the requested order.
func (t *Iterator) canCancelOnLimit(ctx *Context, stm *query.Statement) bool {
	if t.limit == nil {
		return false
	}
	if stm.HasGroup() || len(stm.Split) > 0 {
		return false
	}
	if stm.HasOrder() {
		if len(t.entries) != 1 || !indexOrders(ctx, t.entries[0], stm.Order) {
			return false
		}
	}
	return !stm.Guaranteed
}

// consumeSkip burns one record of the storage-level START skip,
// reporting whether the record should be dropped.
func (t *Iterator) consumeSkip() bool {
	if t.startSkip == nil {
		return false
	}
	t.skipMu.Lock()
	defer t.skipMu.Unlock()
	if *t.startSkip == 0 {
		return false
	}
	*t.startSkip--
	return true
}

// process runs one record through the processor and collects the
// survivor.
func (t *Iterator) process(ctx *Context, stm *query.Statement, pro *Processed) error {
	if ctx.Cancelled() {
		return nil
	}

	// Pre-counted batches bypass per-record computation.
	if pro.Val.Kind == OpCount {
		return t.result(ctx, stm, pro.Strategy, countBatch(pro.Val.Count))
	}

	val, err := ctx.Processor.Compute(ctx, stm, pro)
	if err == ErrIgnore {
		return nil
	}
	if err != nil {
		ctx.event(annotations.ErrorCompute, map[string]interface{}{"error": err.Error()})
		t.fatal(err)
		return nil
	}
	if val == nil || val == cairn.None {
		return nil
	}
	// Collection stages feed index-internal state; their rows are
	// discarded.
	if s, ok := ctx.Stage(); ok && s == plan.StageCollect {
		return nil
	}
	return t.result(ctx, stm, pro.Strategy, val)
}

// result pushes one output row and fires the limit short-circuit when
// the collector is full.
func (t *Iterator) result(ctx *Context, stm *query.Statement, rs plan.RecordStrategy, v cairn.Value) error {
	if err := t.results.Push(ctx, stm, rs, v); err != nil {
		t.fatal(err)
		return nil
	}
	if t.cancelThreshold != nil && t.results.Len() >= *t.cancelThreshold {
		t.can.Cancel()
	}
	return nil
}

// fatal records the first fatal error and cancels the run.
func (t *Iterator) fatal(err error) {
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
	if t.can != nil {
		t.can.Cancel()
	}
}

func (t *Iterator) takeErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// outputSplit fans result rows out over the SPLIT fields, then applies
// ordering and trimming over the expanded set.
func (t *Iterator) outputSplit(ctx *Context, stm *query.Statement) ([]cairn.Value, error) {
	vals, err := t.results.Take()
	if err != nil {
		return nil, err
	}
	for _, path := range stm.Split {
		p := cairn.ParsePath(path)
		split := make([]cairn.Value, 0, len(vals))
		for _, v := range vals {
			field := cairn.Pick(v, p)
			arr, ok := field.(cairn.Array)
			if !ok {
				split = append(split, v)
				continue
			}
			for _, item := range arr {
				row := cairn.CopyValue(v)
				cairn.SetPath(row, p, item)
				split = append(split, row)
			}
		}
		vals = split
	}
	if stm.Order != nil {
		if stm.Order.Random {
			rand.Shuffle(len(vals), func(i, j int) {
				vals[i], vals[j] = vals[j], vals[i]
			})
		} else {
			terms := stm.Order.Terms
			sort.SliceStable(vals, func(i, j int) bool {
				return compareOrder(terms, vals[i], vals[j]) < 0
			})
		}
	}
	vals = trimStartLimit(vals, t.startSkip, t.start, t.limit)
	return t.outputFetch(ctx, stm, vals)
}

// outputFetch resolves record links named by FETCH into their full
// records.
func (t *Iterator) outputFetch(ctx *Context, stm *query.Statement, vals []cairn.Value) ([]cairn.Value, error) {
	if len(stm.Fetch) == 0 {
		return vals, nil
	}
	for _, path := range stm.Fetch {
		p := cairn.ParsePath(path)
		for n, v := range vals {
			field := cairn.Pick(v, p)
			fetched, err := t.fetchValue(ctx, field)
			if err != nil {
				return nil, err
			}
			if fetched == nil {
				continue
			}
			row := cairn.CopyValue(v)
			cairn.SetPath(row, p, fetched)
			vals[n] = row
		}
	}
	return vals, nil
}

// fetchValue dereferences a record id, or each id inside an array.
// Non-link values pass through untouched.
func (t *Iterator) fetchValue(ctx *Context, v cairn.Value) (cairn.Value, error) {
	switch link := v.(type) {
	case cairn.RecordID:
		val, err := ctx.Txn.GetRecord(link)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", link, err)
		}
		return val, nil
	case cairn.Array:
		out := make(cairn.Array, len(link))
		for n, item := range link {
			f, err := t.fetchValue(ctx, item)
			if err != nil {
				return nil, err
			}
			if f == nil {
				f = item
			}
			out[n] = f
		}
		return out, nil
	}
	return nil, nil
}

// evalClause resolves a START or LIMIT expression to a non-negative
// int.
func evalClause(ctx *Context, e query.Expr, name string) (*int, error) {
	if e == nil {
		return nil, nil
	}
	v, err := ctx.Evaluator.Compute(ctx, e)
	if err != nil {
		return nil, err
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			return nil, &SetupError{Msg: fmt.Sprintf("%s must be a whole number, got %v", name, x)}
		}
		n = int(x)
	default:
		return nil, &SetupError{Msg: fmt.Sprintf("%s must be a number, got %s", name, cairn.FormatValue(v))}
	}
	if n < 0 {
		return nil, &SetupError{Msg: fmt.Sprintf("%s must not be negative, got %d", name, n)}
	}
	return &n, nil
}
