package exec

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// openSeededStore opens an in-memory store with n records in table
// "person": person:1 .. person:n, each {n: i, even: i%2==0}.
func openSeededStore(t *testing.T, n int) *storage.Store {
	t.Helper()
	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Update(func(txn *storage.Txn) error {
		for i := 1; i <= n; i++ {
			rid := cairn.NewRecordID("person", int64(i))
			val := cairn.Object{"n": int64(i), "even": i%2 == 0}
			if err := txn.SetRecord(rid, val); err != nil {
				return err
			}
		}
		return nil
	}))
	return store
}

// runStatement executes a statement against the store in a read
// transaction, letting the caller ingest sources and tweak the context.
func runStatement(t *testing.T, store *storage.Store, stm *query.Statement, setup func(*Context, *Iterator)) ([]cairn.Value, error) {
	t.Helper()
	var rows []cairn.Value
	var outErr error
	require.NoError(t, store.View(func(txn *storage.Txn) error {
		ctx := NewContext(context.Background(), txn, Options{})
		ctx.Store = store
		ite := NewIterator()
		setup(ctx, ite)
		rows, outErr = ite.Output(ctx, stm)
		return nil
	}))
	return rows, outErr
}

// rowIDs extracts the id field of every object row.
func rowIDs(t *testing.T, rows []cairn.Value) []cairn.RecordID {
	t.Helper()
	out := make([]cairn.RecordID, 0, len(rows))
	for _, v := range rows {
		obj, ok := v.(cairn.Object)
		require.True(t, ok, "row is not an object: %v", v)
		rid, ok := obj["id"].(cairn.RecordID)
		require.True(t, ok, "row has no id: %v", obj)
		out = append(out, rid)
	}
	return out
}

func pid(i int) cairn.RecordID { return cairn.NewRecordID("person", int64(i)) }

func intLit(n int64) query.Expr { return query.Literal{Value: n} }

// countingProcessor wraps a processor and counts Compute invocations.
type countingProcessor struct {
	mu    sync.Mutex
	calls int
	inner Processor
}

func (p *countingProcessor) Compute(ctx *Context, stm *query.Statement, pro *Processed) (cairn.Value, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Compute(ctx, stm, pro)
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
