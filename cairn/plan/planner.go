package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// IteratorRef is an opaque reference into the planner's iterator
// table. The engine never sees planner-internal state; it only hands
// refs back to the planner when it needs a concrete iterator.
type IteratorRef int

// IteratorRecord is the per-record metadata an index iterator attaches
// to the records it produces, used downstream for highlighting and
// ordering tie-breaks.
type IteratorRecord struct {
	Ref IteratorRef
	// Score is index-specific (e.g. a KNN distance or a relevance
	// score); zero when the index has no notion of score.
	Score float64
}

// IndexRecord is one record produced by an index iterator. Val is
// non-nil only when the index had to fetch the value already (e.g. to
// evaluate a condition); otherwise the engine fetches it on demand.
type IndexRecord struct {
	RID  cairn.RecordID
	Meta *IteratorRecord
	Val  cairn.Value
}

// IndexIterator is the contract an index implementation exposes to
// the engine: batched production of matching records. Implementations
// belong to the index layer and are outside the core.
type IndexIterator interface {
	NextBatch(ctx context.Context, txn *storage.Txn, limit int) ([]IndexRecord, error)
}

// IteratorFactory builds a fresh iterator for one execution of a
// statement. A ref can be executed more than once (staged plans), so
// iterators are never reused.
type IteratorFactory func() IndexIterator

// IterationStage is one stage of a multi-stage plan. KNN-style plans
// need a full collection pass before the final ranking pass.
type IterationStage int

const (
	// StageCollect runs the iterable set to feed index-internal state
	// (e.g. brute-force KNN candidate collection); its results are
	// discarded.
	StageCollect IterationStage = iota
	// StageIterate is the final stage whose results become the output.
	StageIterate
)

type iteratorEntry struct {
	factory IteratorFactory
	// ordered reports that the iterator's natural order equals the
	// statement's requested ORDER BY.
	ordered bool
	// cond is the WHERE expression this iterator fully expresses, if
	// any; residual filtering is unnecessary when it matches.
	cond query.Expr
}

// QueryPlanner is the statement-scoped registry the index-selection
// layer fills in and the engine consults during execution. Index
// selection itself is external; this type is only its output contract.
type QueryPlanner struct {
	mu       sync.Mutex
	entries  []iteratorEntry
	byTable  map[string][]IteratorRef
	perms    map[string]GrantedPermission
	stages   []IterationStage
	stageIdx int
}

// NewQueryPlanner creates an empty planner registry.
func NewQueryPlanner() *QueryPlanner {
	return &QueryPlanner{
		byTable: make(map[string][]IteratorRef),
		perms:   make(map[string]GrantedPermission),
	}
}

// RegisterOption configures a registered iterator.
type RegisterOption func(*iteratorEntry)

// WithOrder marks the iterator's natural order as matching the
// statement's ORDER BY clause.
func WithOrder() RegisterOption {
	return func(e *iteratorEntry) { e.ordered = true }
}

// WithCondition records the WHERE expression the iterator fully
// expresses.
func WithCondition(cond query.Expr) RegisterOption {
	return func(e *iteratorEntry) { e.cond = cond }
}

// Register adds an index iterator for a table and returns its opaque
// reference.
func (p *QueryPlanner) Register(table string, factory IteratorFactory, opts ...RegisterOption) IteratorRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := iteratorEntry{factory: factory}
	for _, opt := range opts {
		opt(&e)
	}
	ref := IteratorRef(len(p.entries))
	p.entries = append(p.entries, e)
	p.byTable[table] = append(p.byTable[table], ref)
	return ref
}

// ErrNoIterator is returned when a reference does not resolve to a
// registered iterator.
var ErrNoIterator = errors.New("no iterator registered")

// NewIterator builds a fresh iterator for a reference.
func (p *QueryPlanner) NewIterator(ref IteratorRef) (IndexIterator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(ref) < 0 || int(ref) >= len(p.entries) {
		return nil, fmt.Errorf("ref %d: %w", ref, ErrNoIterator)
	}
	return p.entries[ref].factory(), nil
}

// IndexesFor returns the iterator references selected for a table, in
// plan order. An empty result means fall back to a full table scan.
func (p *QueryPlanner) IndexesFor(table string) []IteratorRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTable[table]
}

// IsOrder reports whether the referenced iterator natively yields the
// statement's requested order.
func (p *QueryPlanner) IsOrder(ref IteratorRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(ref) >= 0 && int(ref) < len(p.entries) && p.entries[ref].ordered
}

// IsIteratorCondition reports whether the referenced iterator fully
// expresses the given WHERE clause, leaving no residual filtering.
func (p *QueryPlanner) IsIteratorCondition(ref IteratorRef, cond query.Expr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(ref) < 0 || int(ref) >= len(p.entries) || p.entries[ref].cond == nil || cond == nil {
		return false
	}
	return p.entries[ref].cond.String() == cond.String()
}

// SetPermission records the granted permission for a table.
func (p *QueryPlanner) SetPermission(table string, g GrantedPermission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perms[table] = g
}

// Permission returns the granted permission for a table. Tables never
// classified default to Full, matching an engine running without a
// permission layer.
func (p *QueryPlanner) Permission(table string) GrantedPermission {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.perms[table]; ok {
		return g
	}
	return PermissionFull
}

// AnySpecificPermission reports whether any table in the plan carries
// per-record permissions, which disables start-skip pushdown.
func (p *QueryPlanner) AnySpecificPermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.perms {
		if g == PermissionSpecific {
			return true
		}
	}
	return false
}

// RequiresDistinct reports whether the plan can produce the same
// record identity from more than one iterable (multi-index plans).
func (p *QueryPlanner) RequiresDistinct() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, refs := range p.byTable {
		if len(refs) > 1 {
			return true
		}
	}
	return false
}

// SetStages installs a multi-stage iteration plan. Without stages the
// plan is single-pass.
func (p *QueryPlanner) SetStages(stages []IterationStage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = stages
	p.stageIdx = 0
}

// NextStage returns the next iteration stage, or false when the plan
// is exhausted (or was never staged).
func (p *QueryPlanner) NextStage() (IterationStage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stageIdx >= len(p.stages) {
		return 0, false
	}
	s := p.stages[p.stageIdx]
	p.stageIdx++
	return s, true
}

// Staged reports whether the plan carries iteration stages.
func (p *QueryPlanner) Staged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stages) > 0
}
