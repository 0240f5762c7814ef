package exec

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

func TestSelectAllTableScan(t *testing.T) {
	store := openSeededStore(t, 5)
	stm := &query.Statement{Kind: query.Select}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(1), pid(2), pid(3), pid(4), pid(5)}, rowIDs(t, rows))

	first := rows[0].(cairn.Object)
	assert.Equal(t, int64(1), first["n"])
}

func TestBackwardScanYieldsReverseKeyOrder(t *testing.T) {
	store := openSeededStore(t, 4)
	// ORDER BY id DESC is the one shape a backward scan satisfies.
	stm := &query.Statement{
		Kind:  query.Select,
		Order: &query.Ordering{Terms: []query.OrderTerm{{Path: "id", Desc: true}}},
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		require.Len(t, ite.entries, 1)
		assert.Equal(t, plan.Backward, ite.entries[0].Direction)
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(4), pid(3), pid(2), pid(1)}, rowIDs(t, rows))
}

func TestRangeScan(t *testing.T) {
	store := openSeededStore(t, 10)
	stm := &query.Statement{Kind: query.Select}
	r := cairn.KeyRange{Beg: cairn.Include(int64(3)), End: cairn.Exclude(int64(6))}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareRange(ctx, stm, "person", r))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(3), pid(4), pid(5)}, rowIDs(t, rows))
}

func TestThingAndDefer(t *testing.T) {
	store := openSeededStore(t, 3)

	stm := &query.Statement{Kind: query.Select}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareThing(ctx, stm, pid(2)))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].(cairn.Object)["n"])

	// CREATE defers the fetch: the row carries only its identity.
	create := &query.Statement{Kind: query.Create}
	rows, err = runStatement(t, store, create, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareThing(ctx, create, pid(9)))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	obj := rows[0].(cairn.Object)
	assert.Equal(t, pid(9), obj["id"])
	assert.NotContains(t, obj, "n")
}

func TestOrderedLimitUsesBoundedCollector(t *testing.T) {
	store := openSeededStore(t, 10)
	stm := &query.Statement{
		Kind:  query.Select,
		Order: &query.Ordering{Terms: []query.OrderTerm{{Path: "n", Desc: true}}},
		Limit: intLit(3),
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(10), pid(9), pid(8)}, rowIDs(t, rows))
}

func TestOrderedLimitZeroYieldsNothing(t *testing.T) {
	store := openSeededStore(t, 3)
	stm := &query.Statement{
		Kind:  query.Select,
		Order: &query.Ordering{Terms: []query.OrderTerm{{Path: "n"}}},
		Limit: intLit(0),
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOrderedStartLimit(t *testing.T) {
	store := openSeededStore(t, 10)
	stm := &query.Statement{
		Kind:  query.Select,
		Order: &query.Ordering{Terms: []query.OrderTerm{{Path: "n"}}},
		Start: intLit(2),
		Limit: intLit(3),
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(3), pid(4), pid(5)}, rowIDs(t, rows))
}

func TestStartSkipPushdown(t *testing.T) {
	store := openSeededStore(t, 5)
	stm := &query.Statement{Kind: query.Select, Start: intLit(2), Limit: intLit(2)}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(3), pid(4)}, rowIDs(t, rows))
}

func TestCanStartSkipConditions(t *testing.T) {
	ctx := NewContext(context.Background(), nil, Options{})
	two := 2
	base := func() *Iterator {
		ite := NewIterator()
		ite.start = &two
		ite.Ingest(TableSource("person", plan.KeysAndValues, plan.Forward))
		return ite
	}

	assert.True(t, base().canStartSkip(ctx, &query.Statement{}))

	// Each post-scan clause disables the storage-level skip.
	assert.False(t, base().canStartSkip(ctx, &query.Statement{Cond: query.Literal{Value: true}}))
	assert.False(t, base().canStartSkip(ctx, &query.Statement{Group: &query.Grouping{All: true}}))
	assert.False(t, base().canStartSkip(ctx, &query.Statement{Split: []string{"x"}}))
	assert.False(t, base().canStartSkip(ctx, &query.Statement{
		Order: &query.Ordering{Terms: []query.OrderTerm{{Path: "n"}}},
	}))

	// Per-record permissions may reject rows, so raw skipping is wrong.
	perm := NewContext(context.Background(), nil, Options{})
	perm.Planner = plan.NewQueryPlanner()
	perm.Planner.SetPermission("person", plan.PermissionSpecific)
	assert.False(t, base().canStartSkip(perm, &query.Statement{}))

	// Non-scan sources cannot skip.
	ite := NewIterator()
	ite.start = &two
	ite.Ingest(ThingSource(pid(1)))
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{}))

	// No START means nothing to push down.
	ite = NewIterator()
	ite.Ingest(TableSource("person", plan.KeysAndValues, plan.Forward))
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{}))
}

// Merging several sources makes a per-source skip meaningless, so
// only a single-source plan consumes START at the storage level.
func TestStartSkipRequiresSingleSource(t *testing.T) {
	ctx := NewContext(context.Background(), nil, Options{})
	two := 2

	ite := NewIterator()
	ite.start = &two
	ite.Ingest(TableSource("person", plan.KeysAndValues, plan.Forward))
	ite.Ingest(TableSource("animal", plan.KeysAndValues, plan.Forward))
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{}))
}

// A single index source widens the skip: a WHERE the iterator fully
// expresses, or an ORDER BY it natively yields, no longer disables it.
func TestStartSkipWithIndexBackedClauses(t *testing.T) {
	two := 2
	cond := query.Literal{Value: "n = 4"}
	order := &query.Ordering{Terms: []query.OrderTerm{{Path: "n"}}}

	indexed := func(opts ...plan.RegisterOption) (*Context, *Iterator) {
		ctx := NewContext(context.Background(), nil, Options{})
		ctx.Planner = plan.NewQueryPlanner()
		ref := ctx.Planner.Register("person", func() plan.IndexIterator { return &stubIndex{} }, opts...)
		ite := NewIterator()
		ite.start = &two
		ite.Ingest(IndexSource("person", ref, plan.KeysAndValues))
		return ctx, ite
	}

	ctx, ite := indexed(plan.WithCondition(cond))
	assert.True(t, ite.canStartSkip(ctx, &query.Statement{Cond: cond}))
	// A different WHERE leaves residual filtering.
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{Cond: query.Literal{Value: "n = 9"}}))

	ctx, ite = indexed(plan.WithOrder())
	assert.True(t, ite.canStartSkip(ctx, &query.Statement{Order: order}))
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{Order: &query.Ordering{Random: true}}))

	// An unmarked iterator widens nothing.
	ctx, ite = indexed()
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{Cond: cond}))
	assert.False(t, ite.canStartSkip(ctx, &query.Statement{Order: order}))
}

// ORDER BY normally needs the complete set before trimming, but a
// single index source that already yields the requested order can
// stop as soon as the collector is full.
func TestCancelOnLimitWithOrderedIndex(t *testing.T) {
	three := 3
	order := &query.Ordering{Terms: []query.OrderTerm{{Path: "n"}}}

	ctx := NewContext(context.Background(), nil, Options{})
	ite := NewIterator()
	ite.limit = &three
	ite.Ingest(TableSource("person", plan.KeysAndValues, plan.Forward))
	assert.True(t, ite.canCancelOnLimit(ctx, &query.Statement{}))
	assert.False(t, ite.canCancelOnLimit(ctx, &query.Statement{Order: order}))

	idx := NewContext(context.Background(), nil, Options{})
	idx.Planner = plan.NewQueryPlanner()
	ref := idx.Planner.Register("person", func() plan.IndexIterator { return &stubIndex{} }, plan.WithOrder())
	ite = NewIterator()
	ite.limit = &three
	ite.Ingest(IndexSource("person", ref, plan.KeysAndValues))
	assert.True(t, ite.canCancelOnLimit(idx, &query.Statement{Order: order}))
}

// START must not be pushed to the storage level when a WHERE clause
// filters rows after the scan: the skip applies to matching rows, not
// raw records.
func TestStartNotPushedDownUnderCondition(t *testing.T) {
	store := openSeededStore(t, 5)
	// Matches only person:4.
	cond := func(_ *Context, _ *query.Statement, pro *Processed) (bool, error) {
		obj, _ := pro.Val.Value.(cairn.Object)
		return cairn.Compare(obj["n"], int64(4)) == 0, nil
	}
	stm := &query.Statement{
		Kind:  query.Select,
		Cond:  query.Literal{Value: "n = 4"},
		Start: intLit(1),
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = ValueProcessor{Cond: cond}
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	// One match, START 1 skips it. A storage-level skip would have
	// wrongly returned person:4.
	assert.Empty(t, rows)
}

func TestCancelOnLimitStopsScanEarly(t *testing.T) {
	store := openSeededStore(t, 200)
	stm := &query.Statement{Kind: query.Select, Limit: intLit(3)}

	proc := &countingProcessor{inner: ValueProcessor{}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = proc
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	// The scan stops at the threshold instead of walking all 200.
	assert.Less(t, proc.count(), 10)
}

func TestCountGroupAllNeverComputesRecords(t *testing.T) {
	store := openSeededStore(t, 7)
	stm := &query.Statement{
		Kind:   query.Select,
		Fields: []query.Field{{Alias: "count", Aggregate: "count"}},
		Group:  &query.Grouping{All: true},
	}

	proc := &countingProcessor{inner: ValueProcessor{}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = proc
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		require.Len(t, ite.entries, 1)
		assert.Equal(t, plan.Count, ite.entries[0].Strategy)
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].(cairn.Object)["count"])
	assert.Zero(t, proc.count())
}

func TestGroupedAggregation(t *testing.T) {
	store := openSeededStore(t, 6)
	stm := &query.Statement{
		Kind: query.Select,
		Fields: []query.Field{
			{Alias: "even", Path: "even"},
			{Alias: "total", Path: "n", Aggregate: "sum"},
			{Alias: "count", Aggregate: "count"},
		},
		Group: &query.Grouping{Paths: []string{"even"}},
	}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byEven := map[bool]cairn.Object{}
	for _, v := range rows {
		obj := v.(cairn.Object)
		byEven[obj["even"].(bool)] = obj
	}
	// 1+3+5 and 2+4+6.
	assert.Equal(t, int64(9), byEven[false]["total"])
	assert.Equal(t, int64(12), byEven[true]["total"])
	assert.Equal(t, int64(3), byEven[false]["count"])
}

func TestSplitFansOutArrayField(t *testing.T) {
	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Update(func(txn *storage.Txn) error {
		return txn.SetRecord(cairn.NewRecordID("post", int64(1)),
			cairn.Object{"title": "a", "tags": cairn.Array{"x", "y", "z"}})
	}))

	stm := &query.Statement{Kind: query.Select, Split: []string{"tags"}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "post"))
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var tags []string
	for _, v := range rows {
		obj := v.(cairn.Object)
		assert.Equal(t, "a", obj["title"])
		tags = append(tags, obj["tags"].(string))
	}
	assert.ElementsMatch(t, []string{"x", "y", "z"}, tags)
}

func TestSplitWithRandomOrderKeepsAllRows(t *testing.T) {
	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Update(func(txn *storage.Txn) error {
		return txn.SetRecord(cairn.NewRecordID("post", int64(1)),
			cairn.Object{"tags": cairn.Array{"w", "x", "y", "z"}})
	}))

	stm := &query.Statement{
		Kind:  query.Select,
		Split: []string{"tags"},
		Order: &query.Ordering{Random: true},
	}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "post"))
	})
	require.NoError(t, err)
	var tags []string
	for _, v := range rows {
		tags = append(tags, v.(cairn.Object)["tags"].(string))
	}
	// Shuffling reorders the fan-out without losing or duplicating rows.
	assert.ElementsMatch(t, []string{"w", "x", "y", "z"}, tags)
}

func TestFetchResolvesLinks(t *testing.T) {
	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	author := cairn.NewRecordID("person", "alice")
	require.NoError(t, store.Update(func(txn *storage.Txn) error {
		if err := txn.SetRecord(author, cairn.Object{"name": "Alice"}); err != nil {
			return err
		}
		return txn.SetRecord(cairn.NewRecordID("post", int64(1)),
			cairn.Object{"title": "a", "author": author})
	}))

	stm := &query.Statement{Kind: query.Select, Fetch: []string{"author"}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "post"))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	fetched := rows[0].(cairn.Object)["author"].(cairn.Object)
	assert.Equal(t, "Alice", fetched["name"])
}

func TestLookupTraversesEdges(t *testing.T) {
	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	alice := cairn.NewRecordID("person", "alice")
	bob := cairn.NewRecordID("person", "bob")
	k1 := cairn.NewRecordID("knows", int64(1))
	require.NoError(t, store.Update(func(txn *storage.Txn) error {
		if err := txn.SetRecord(k1, cairn.Object{"in": alice, "out": bob}); err != nil {
			return err
		}
		if err := txn.SetEdge(alice, storage.DirOut, k1); err != nil {
			return err
		}
		return txn.SetEdge(bob, storage.DirIn, k1)
	}))

	stm := &query.Statement{Kind: query.Select}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareLookup(ctx, stm, Lookup{Dir: storage.DirOut, From: alice}))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, k1, rows[0].(cairn.Object)["id"])

	// Both directions from bob finds the same edge via the In index.
	rows, err = runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareLookup(ctx, stm, Lookup{Dir: storage.DirBoth, From: bob}))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestGuaranteedYieldRunsOnlyWhenEmpty(t *testing.T) {
	store := openSeededStore(t, 2)

	// Nothing else ingested: the held-back yield generates a record.
	stm := &query.Statement{Kind: query.Create, Guaranteed: true}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareYield(ctx, stm, "person"))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rid := rows[0].(cairn.Object)["id"].(cairn.RecordID)
	assert.Equal(t, "person", rid.Table)
	assert.NotEmpty(t, rid.Key)

	// With a produced row the yield stays held back.
	stm = &query.Statement{Kind: query.Select, Guaranteed: true}
	rows, err = runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareThing(ctx, stm, pid(1)))
		require.NoError(t, ite.PrepareYield(ctx, stm, "person"))
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pid(1), rows[0].(cairn.Object)["id"])
}

func TestExplainDescribesWithoutIterating(t *testing.T) {
	store := openSeededStore(t, 5)
	stm := &query.Statement{Kind: query.Select, Explain: query.ExplainNormal}

	proc := &countingProcessor{inner: ValueProcessor{}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = proc
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Zero(t, proc.count())

	ops := map[string]bool{}
	for _, v := range rows {
		ops[v.(cairn.Object)["operation"].(string)] = true
	}
	assert.True(t, ops["Iterate"])
	assert.True(t, ops["Collector"])
	assert.True(t, ops["RecordStrategy"])
}

func TestExplainFullIterates(t *testing.T) {
	store := openSeededStore(t, 5)
	stm := &query.Statement{Kind: query.Select, Explain: query.ExplainFull}

	proc := &countingProcessor{inner: ValueProcessor{}}
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = proc
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, 5, proc.count())

	var fetch cairn.Object
	for _, v := range rows {
		obj := v.(cairn.Object)
		if obj["operation"] == "Fetch" {
			fetch = obj["detail"].(cairn.Object)
		}
	}
	require.NotNil(t, fetch)
	assert.Equal(t, int64(5), fetch["count"])
}

type failingProcessor struct {
	mu    sync.Mutex
	after int
	seen  int
}

func (p *failingProcessor) Compute(_ *Context, _ *query.Statement, pro *Processed) (cairn.Value, error) {
	p.mu.Lock()
	p.seen++
	fail := p.seen > p.after
	p.mu.Unlock()
	if fail {
		return nil, errors.New("boom")
	}
	return pro.Val.Value, nil
}

func TestFatalErrorDiscardsPartialResults(t *testing.T) {
	store := openSeededStore(t, 10)
	stm := &query.Statement{Kind: query.Select}

	_, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = &failingProcessor{after: 2}
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestIgnoreDropsRecordsSilently(t *testing.T) {
	store := openSeededStore(t, 6)
	cond := func(_ *Context, _ *query.Statement, pro *Processed) (bool, error) {
		obj, _ := pro.Val.Value.(cairn.Object)
		return obj["even"] == true, nil
	}
	stm := &query.Statement{Kind: query.Select, Cond: query.Literal{Value: "even"}}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = ValueProcessor{Cond: cond}
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.NoError(t, err)
	assert.Equal(t, []cairn.RecordID{pid(2), pid(4), pid(6)}, rowIDs(t, rows))
}

func TestAmbientCancellationKeepsPartialResults(t *testing.T) {
	store := openSeededStore(t, 5)
	stm := &query.Statement{Kind: query.Select}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var rows []cairn.Value
	require.NoError(t, store.View(func(txn *storage.Txn) error {
		ctx := NewContext(cancelled, txn, Options{CancelCheckInterval: 1})
		ctx.Store = store
		ite := NewIterator()
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		var err error
		rows, err = ite.Output(ctx, stm)
		require.NoError(t, err)
		return nil
	}))
	// Cancellation is not an error; whatever was collected is kept.
	assert.Empty(t, rows)
}

// The parallel pipeline treats ambient cancellation the same way the
// sequential path does: truncation, not failure.
func TestParallelAmbientCancellationKeepsPartialResults(t *testing.T) {
	store := openSeededStore(t, 50)
	stm := &query.Statement{Kind: query.Select, Parallel: true}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, store.View(func(txn *storage.Txn) error {
		ctx := NewContext(cancelled, txn, Options{CancelCheckInterval: 1})
		ctx.Store = store
		ite := NewIterator()
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		rows, err := ite.Output(ctx, stm)
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	}))
}

func TestSetupErrors(t *testing.T) {
	store := openSeededStore(t, 1)

	stm := &query.Statement{Kind: query.Select, Limit: intLit(-1)}
	_, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	var setup *SetupError
	require.ErrorAs(t, err, &setup)

	stm = &query.Statement{Kind: query.Select, Limit: query.Literal{Value: "ten"}}
	_, err = runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.ErrorAs(t, err, &setup)
}

func TestPermissionNoneContributesNothing(t *testing.T) {
	store := openSeededStore(t, 3)
	stm := &query.Statement{Kind: query.Select}

	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Planner = plan.NewQueryPlanner()
		ctx.Planner.SetPermission("person", plan.PermissionNone)
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		assert.Empty(t, ite.entries)
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParallelMatchesSequential(t *testing.T) {
	store := openSeededStore(t, 50)

	run := func(parallel bool) []cairn.RecordID {
		stm := &query.Statement{Kind: query.Select, Parallel: parallel}
		rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
			require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		})
		require.NoError(t, err)
		ids := rowIDs(t, rows)
		sort.Slice(ids, func(i, j int) bool { return cairn.Compare(ids[i].Key, ids[j].Key) < 0 })
		return ids
	}

	assert.Equal(t, run(false), run(true))
}

func TestParallelFatalErrorSurfaces(t *testing.T) {
	store := openSeededStore(t, 10)
	stm := &query.Statement{Kind: query.Select, Parallel: true}

	_, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		ctx.Processor = &failingProcessor{after: 2}
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCloneSharesSourcesNotState(t *testing.T) {
	store := openSeededStore(t, 3)
	stm := &query.Statement{Kind: query.Select}

	var clone *Iterator
	rows, err := runStatement(t, store, stm, func(ctx *Context, ite *Iterator) {
		require.NoError(t, ite.PrepareTable(ctx, stm, "person"))
		clone = ite.Clone()
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// The clone re-runs the same sources from scratch.
	require.NoError(t, store.View(func(txn *storage.Txn) error {
		ctx := NewContext(context.Background(), txn, Options{})
		ctx.Store = store
		rows2, err := clone.Output(ctx, stm)
		require.NoError(t, err)
		assert.Len(t, rows2, 3)
		return nil
	}))
}
