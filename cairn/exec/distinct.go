package exec

import (
	"sync"

	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/storage"
)

// SyncDistinct deduplicates records reachable through more than one
// iterable in a multi-index plan. Identities are keyed by their
// encoded storage key, serialised once per candidate. Single-threaded;
// parallel execution uses AsyncDistinct.
type SyncDistinct struct {
	seen map[string]struct{}
}

// NewSyncDistinct returns a distinct set when the plan can produce the
// same identity from more than one iterable, nil otherwise. Not
// instantiating it in the common case avoids pointless hashing.
func NewSyncDistinct(p *plan.QueryPlanner) *SyncDistinct {
	if p == nil || !p.RequiresDistinct() {
		return nil
	}
	return &SyncDistinct{seen: make(map[string]struct{})}
}

// CheckAlreadyProcessed reports whether the candidate's identity has
// been seen before, inserting it when it has not. Records without an
// identity are never duplicates.
func (d *SyncDistinct) CheckAlreadyProcessed(pro *Processed) bool {
	if pro.RID == nil {
		return false
	}
	key := string(storage.RecordKey(*pro.RID))
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// AsyncDistinct is the shared variant for parallel execution: the same
// set behind a mutex, cloned by handle into every producer task.
type AsyncDistinct struct {
	mu   *sync.Mutex
	seen map[string]struct{}
}

// NewAsyncDistinct mirrors NewSyncDistinct for the parallel mode.
func NewAsyncDistinct(p *plan.QueryPlanner) *AsyncDistinct {
	if p == nil || !p.RequiresDistinct() {
		return nil
	}
	return &AsyncDistinct{mu: &sync.Mutex{}, seen: make(map[string]struct{})}
}

// CheckAlreadyProcessed is the locked equivalent of the synchronous
// check.
func (d *AsyncDistinct) CheckAlreadyProcessed(pro *Processed) bool {
	if pro.RID == nil {
		return false
	}
	key := string(storage.RecordKey(*pro.RID))
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}
