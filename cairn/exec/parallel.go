package exec

import (
	"sync"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
)

// iterateParallel runs the ingested sources through a bounded
// three-stage pipeline: producers scan storage, a worker pool runs
// per-record computation, and a single aggregator owns the collector.
// Channel capacity bounds memory; a fatal error or a full collector
// fires the shared canceller and the stages drain out.
func (t *Iterator) iterateParallel(ctx *Context, stm *query.Statement) error {
	if ctx.Store == nil {
		return &SetupError{Msg: "parallel execution requires a store handle"}
	}

	tasks := ctx.Options.MaxConcurrentTasks
	proCh := make(chan *Processed, tasks)
	valCh := make(chan processedValue, tasks)

	dis := NewAsyncDistinct(ctx.Planner)

	// Producers. Each owns its own read snapshot; the shared
	// transaction is not safe across goroutines.
	var producers sync.WaitGroup
	for _, e := range t.entries {
		producers.Add(1)
		go func(e Iterable) {
			defer producers.Done()
			txn := ctx.Store.Begin(false)
			defer txn.Discard()
			coll := &chanCollector{ctx: ctx, ch: proCh, dis: dis}
			if err := e.iterate(ctx, stm, txn, t, coll); err != nil {
				ctx.event(annotations.ErrorBackend, map[string]interface{}{"error": err.Error()})
				t.fatal(err)
			}
		}(e)
	}

	// Workers run the per-record computation concurrently.
	var workers sync.WaitGroup
	for n := 0; n < tasks; n++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for pro := range proCh {
				if ctx.Cancelled() {
					continue
				}
				if pro.Val.Kind == OpCount {
					valCh <- processedValue{strategy: pro, val: countBatch(pro.Val.Count)}
					continue
				}
				val, err := ctx.Processor.Compute(ctx, stm, pro)
				if err == ErrIgnore {
					continue
				}
				if err != nil {
					ctx.event(annotations.ErrorCompute, map[string]interface{}{"error": err.Error()})
					t.fatal(err)
					continue
				}
				if val == nil || val == cairn.None {
					continue
				}
				if s, ok := ctx.Stage(); ok && s == plan.StageCollect {
					continue
				}
				valCh <- processedValue{strategy: pro, val: val}
			}
		}()
	}

	// Aggregator: the only goroutine touching the collector.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for pv := range valCh {
			if ctx.Cancelled() {
				continue
			}
			if err := t.result(ctx, stm, pv.strategy.Strategy, pv.val); err != nil {
				t.fatal(err)
			}
		}
	}()

	producers.Wait()
	close(proCh)
	workers.Wait()
	close(valCh)
	<-done
	return nil
}

// processedValue pairs a computed row with its originating record.
type processedValue struct {
	strategy *Processed
	val      cairn.Value
}

// chanCollector feeds processed records into the pipeline, dropping
// duplicates and stopping on cancellation.
type chanCollector struct {
	ctx *Context
	ch  chan<- *Processed
	dis *AsyncDistinct
}

func (c *chanCollector) Collect(pro *Processed) error {
	if c.ctx.Cancelled() {
		return nil
	}
	if c.dis != nil && c.dis.CheckAlreadyProcessed(pro) {
		return nil
	}
	select {
	case c.ch <- pro:
		return nil
	case <-c.ctx.Done():
		// Ambient cancellation truncates rather than fails; the
		// producer unwinds through its Stopped checks.
		return nil
	}
}

var _ recordCollector = (*chanCollector)(nil)
