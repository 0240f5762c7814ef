// Package exec is the query-execution core: it turns a resolved
// statement plus a set of ingested data sources into a correctly
// ordered, correctly limited, deduplicated result set, sequentially or
// through a bounded concurrent pipeline.
package exec

import (
	"context"
	"sync/atomic"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// Canceller is the shared cancellation flag for one statement
// execution. It is a plain atomic boolean handed by reference to every
// task spawned for the call; firing it stops producers, drains
// consumers, and closes the aggregator to new rows.
type Canceller struct {
	fired atomic.Bool
}

// Cancel fires the flag. Idempotent.
func (c *Canceller) Cancel() { c.fired.Store(true) }

// Cancelled reports whether the flag has fired.
func (c *Canceller) Cancelled() bool { return c.fired.Load() }

// Context is the per-statement execution environment: the ambient
// context, the storage handles, the planner output, and the external
// collaborators the engine calls into.
type Context struct {
	context.Context

	// Store is needed for parallel execution, where each producer
	// opens its own read snapshot. Txn serves everything else.
	Store *storage.Store
	Txn   *storage.Txn

	// Planner is the index-selection output consumed by the engine;
	// nil when every source is a plain scan.
	Planner *plan.QueryPlanner

	// Processor is the per-record compute collaborator.
	Processor Processor
	// Evaluator resolves LIMIT/START expressions.
	Evaluator Evaluator

	Options Options
	// Events receives diagnostic events; nil disables collection.
	Events *annotations.Collector

	stage     plan.IterationStage
	staged    bool
	canceller *Canceller
}

// NewContext builds an execution context with defaults applied.
func NewContext(ctx context.Context, txn *storage.Txn, opts Options) *Context {
	return &Context{
		Context:   ctx,
		Txn:       txn,
		Options:   opts.withDefaults(),
		Evaluator: LiteralEvaluator{},
	}
}

// withCanceller derives a child scope sharing everything but the
// cancellation flag.
func (c *Context) withCanceller(can *Canceller) *Context {
	child := *c
	child.canceller = can
	return &child
}

// WithStage derives a scope running under a specific iteration stage.
func (c *Context) WithStage(s plan.IterationStage) *Context {
	child := *c
	child.stage = s
	child.staged = true
	return &child
}

// Stage returns the current iteration stage, if any.
func (c *Context) Stage() (plan.IterationStage, bool) { return c.stage, c.staged }

// Cancelled reports whether the statement's cancellation flag fired.
func (c *Context) Cancelled() bool {
	return c.canceller != nil && c.canceller.Cancelled()
}

// Stopped reports whether iteration should stop. The cancellation flag
// is checked every call; the ambient context only every
// CancelCheckInterval records, to bound overhead on long scans.
func (c *Context) Stopped(count int) bool {
	if c.Cancelled() {
		return true
	}
	if count%c.Options.CancelCheckInterval == 0 && c.Err() != nil {
		return true
	}
	return false
}

// event emits a diagnostic event when collection is enabled.
func (c *Context) event(name string, data map[string]interface{}) {
	if c.Events != nil {
		c.Events.Add(annotations.Event{Name: name, Data: data})
	}
}

// Processor is the external per-record compute collaborator: it
// applies permission checks, field pipelines, index maintenance, and
// event recording for one processed record, returning the final value,
// ErrIgnore to drop the record silently, or a fatal error.
type Processor interface {
	Compute(ctx *Context, stm *query.Statement, pro *Processed) (cairn.Value, error)
}

// Evaluator resolves expressions the engine needs as plain values
// (LIMIT, START). Expression semantics are outside the core.
type Evaluator interface {
	Compute(ctx context.Context, e query.Expr) (cairn.Value, error)
}

// LiteralEvaluator resolves only literal expressions, which is all an
// embedded engine needs when the surrounding layer pre-computes
// clause values.
type LiteralEvaluator struct{}

func (LiteralEvaluator) Compute(_ context.Context, e query.Expr) (cairn.Value, error) {
	if l, ok := e.(query.Literal); ok {
		return l.Value, nil
	}
	return nil, &SetupError{Msg: "expression requires an external evaluator: " + e.String()}
}
