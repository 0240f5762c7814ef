package exec

import (
	"fmt"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// recordCollector receives the Processed stream produced by executing
// one iterable. The sequential mode feeds the Iterator directly; the
// parallel mode feeds a bounded channel.
type recordCollector interface {
	Collect(pro *Processed) error
}

// iterate executes one iterable against a collector. txn is the read
// snapshot to scan with; in parallel mode each producer owns its own.
func (i Iterable) iterate(ctx *Context, stm *query.Statement, txn *storage.Txn, ite *Iterator, coll recordCollector) error {
	if !i.stageCheck(ctx) {
		return nil
	}
	switch i.Kind {
	case IterValue:
		if i.Value == nil {
			return nil
		}
		return coll.Collect(&Processed{Val: Operable{Kind: OpValue, Value: i.Value}})
	case IterDefer:
		rid := i.RID
		return coll.Collect(&Processed{RID: &rid, Val: Operable{Kind: OpValue, Value: cairn.None}})
	case IterYield:
		return coll.Collect(&Processed{Generate: i.Table, Val: Operable{Kind: OpValue, Value: cairn.None}})
	case IterThing:
		return i.collectThing(txn, coll)
	case IterLookup:
		return i.collectLookup(ctx, txn, coll)
	case IterTable:
		beg, end := storage.TablePrefix(i.Table), storage.TableSuffix(i.Table)
		return i.collectScan(ctx, txn, ite, coll, beg, end)
	case IterRange:
		beg, end := storage.RangeBounds(i.Table, i.Range)
		return i.collectScan(ctx, txn, ite, coll, beg, end)
	case IterMergeable:
		rid := i.RID
		return coll.Collect(&Processed{
			RID: &rid,
			Val: Operable{Kind: OpInsert, Value: cairn.None, Patch: i.Patch},
		})
	case IterRelatable:
		return i.collectRelatable(txn, coll)
	case IterIndex:
		return i.collectIndex(ctx, txn, ite, coll)
	}
	return fmt.Errorf("unhandled iterable kind %v", i.Kind)
}

// stageCheck gates sources during staged plans: a collect stage only
// runs the scan-backed sources that feed index-internal state.
func (i Iterable) stageCheck(ctx *Context) bool {
	if stage, ok := ctx.Stage(); ok && stage == plan.StageCollect {
		return i.Kind == IterTable || i.Kind == IterIndex
	}
	return true
}

func (i Iterable) collectThing(txn *storage.Txn, coll recordCollector) error {
	val, err := txn.GetRecord(i.RID)
	if err != nil {
		return err
	}
	rid := i.RID
	return coll.Collect(&Processed{RID: &rid, Val: Operable{Kind: OpValue, Value: val}})
}

func (i Iterable) collectRelatable(txn *storage.Txn, coll recordCollector) error {
	val, err := txn.GetRecord(i.With)
	if err != nil {
		return err
	}
	rid := i.With
	return coll.Collect(&Processed{
		RID: &rid,
		Val: Operable{Kind: OpRelate, Value: val, Patch: i.Data, From: i.From, To: i.To},
	})
}

// collectScan walks a record key range under the iterable's strategy
// and direction.
func (i Iterable) collectScan(ctx *Context, txn *storage.Txn, ite *Iterator, coll recordCollector, beg, end []byte) error {
	opts := storage.ScanOptions{
		KeysOnly: i.Strategy != plan.KeysAndValues,
		Reverse:  i.Direction == plan.Backward,
	}
	cur := txn.Scan(beg, end, opts)
	defer cur.Close()

	if i.Strategy == plan.Count {
		n := 0
		for ; cur.Valid(); cur.Next() {
			if ctx.Stopped(n) {
				break
			}
			n++
		}
		ctx.event(annotations.SourceScanned, map[string]interface{}{"source": i.String(), "records": n})
		return coll.Collect(&Processed{
			Strategy: i.Strategy,
			Val:      Operable{Kind: OpCount, Count: n},
		})
	}

	count := 0
	for ; cur.Valid(); cur.Next() {
		if ctx.Stopped(count) {
			ctx.event(annotations.ScanCancelled, map[string]interface{}{"source": i.String(), "records": count})
			break
		}
		count++
		// Storage-level START skip: drop the record before it is even
		// decoded.
		if ite.consumeSkip() {
			continue
		}
		rid, err := storage.DecodeRecordKey(cur.Key())
		if err != nil {
			return fmt.Errorf("scan %q: %w", i.Table, err)
		}
		pro := &Processed{Strategy: i.Strategy, RID: &rid}
		if i.Strategy == plan.KeysAndValues {
			raw, err := cur.Value()
			if err != nil {
				return fmt.Errorf("scan %q: %w", i.Table, err)
			}
			val, err := storage.DecodeValue(raw)
			if err != nil {
				return fmt.Errorf("scan %q: %w", i.Table, err)
			}
			pro.Val = Operable{Kind: OpValue, Value: val}
		} else {
			pro.Val = Operable{Kind: OpValue, Value: cairn.None}
		}
		if err := coll.Collect(pro); err != nil {
			return err
		}
	}
	ctx.event(annotations.SourceScanned, map[string]interface{}{"source": i.String(), "records": count})
	return nil
}

// collectLookup scans the graph-edge ranges for the traversal and
// fetches each edge record.
func (i Iterable) collectLookup(ctx *Context, txn *storage.Txn, coll recordCollector) error {
	type span struct{ beg, end []byte }
	var spans []span

	dirs := []storage.Dir{i.Look.Dir}
	if i.Look.Dir == storage.DirBoth {
		dirs = []storage.Dir{storage.DirIn, storage.DirOut}
	}
	for _, d := range dirs {
		if len(i.Look.What) == 0 {
			beg, end := storage.EdgeDirPrefix(i.Look.From, d)
			spans = append(spans, span{beg, end})
			continue
		}
		for _, tb := range i.Look.What {
			beg, end := storage.EdgeTargetPrefix(i.Look.From, d, tb)
			spans = append(spans, span{beg, end})
		}
	}

	count := 0
	for _, s := range spans {
		cur := txn.Scan(s.beg, s.end, storage.ScanOptions{KeysOnly: true})
		for ; cur.Valid(); cur.Next() {
			if ctx.Stopped(count) {
				cur.Close()
				return nil
			}
			count++
			_, _, edge, err := storage.DecodeEdgeKey(cur.Key())
			if err != nil {
				cur.Close()
				return fmt.Errorf("lookup from %s: %w", i.Look.From, err)
			}
			val, err := txn.GetRecord(edge)
			if err != nil {
				cur.Close()
				return err
			}
			rid := edge
			if err := coll.Collect(&Processed{RID: &rid, Val: Operable{Kind: OpValue, Value: val}}); err != nil {
				cur.Close()
				return err
			}
		}
		cur.Close()
	}
	return nil
}

// collectIndex drives a planner-built index iterator in batches.
func (i Iterable) collectIndex(ctx *Context, txn *storage.Txn, ite *Iterator, coll recordCollector) error {
	if ctx.Planner == nil {
		return fmt.Errorf("index source for %q without a planner", i.Table)
	}
	it, err := ctx.Planner.NewIterator(i.Ref)
	if err != nil {
		return err
	}
	count := 0
	for !ctx.Stopped(count) {
		batch, err := it.NextBatch(ctx, txn, ctx.Options.FetchBatchSize)
		if err != nil {
			return fmt.Errorf("index scan %q: %w", i.Table, err)
		}
		if len(batch) == 0 {
			ctx.event(annotations.SourceScanned, map[string]interface{}{"source": i.String(), "records": count})
			return nil
		}
		for _, r := range batch {
			count++
			if ite.consumeSkip() {
				continue
			}
			val := r.Val
			if val == nil && i.Strategy == plan.KeysAndValues {
				if val, err = txn.GetRecord(r.RID); err != nil {
					return err
				}
			}
			rid := r.RID
			if err := coll.Collect(&Processed{
				Strategy: i.Strategy,
				RID:      &rid,
				Val:      Operable{Kind: OpValue, Value: val},
				IR:       r.Meta,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncCollector feeds processed records straight into the Iterator.
type syncCollector struct {
	ctx *Context
	stm *query.Statement
	ite *Iterator
}

func (c *syncCollector) Collect(pro *Processed) error {
	return c.ite.process(c.ctx, c.stm, pro)
}

// syncDistinctCollector consults the dedup set before forwarding.
type syncDistinctCollector struct {
	coll *syncCollector
	dis  *SyncDistinct
}

func (c *syncDistinctCollector) Collect(pro *Processed) error {
	if c.dis.CheckAlreadyProcessed(pro) {
		return nil
	}
	return c.coll.Collect(pro)
}
