package exec

import (
	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// Preparation glue: turns statement targets into ingested iterables,
// consulting the planner for index selection and permissions and
// stamping each scan source with its record strategy and direction.

// PrepareTable ingests one table target. Index-backed sources are used
// when the planner selected iterators for the table; otherwise a plain
// scan. Tables with no granted access contribute nothing.
func (t *Iterator) PrepareTable(ctx *Context, stm *query.Statement, table string) error {
	perm := tablePermission(ctx, table)
	if perm == plan.PermissionNone {
		return nil
	}
	sc := plan.StatementContext{Stmt: stm, ReverseScan: storage.ReverseScanSupported}

	if ctx.Planner != nil {
		if refs := ctx.Planner.IndexesFor(table); len(refs) > 0 {
			for _, ref := range refs {
				covered := ctx.Planner.IsIteratorCondition(ref, stm.Cond)
				rs := sc.CheckRecordStrategy(covered, perm)
				emitStrategy(ctx, rs, plan.Forward)
				t.ingestPrepared(ctx, IndexSource(table, ref, rs))
			}
			return nil
		}
	}

	rs := sc.CheckRecordStrategy(false, perm)
	dir := sc.CheckScanDirection()
	emitStrategy(ctx, rs, dir)
	t.ingestPrepared(ctx, TableSource(table, rs, dir))
	return nil
}

// PrepareRange ingests a record-range target over one table.
func (t *Iterator) PrepareRange(ctx *Context, stm *query.Statement, table string, r cairn.KeyRange) error {
	perm := tablePermission(ctx, table)
	if perm == plan.PermissionNone {
		return nil
	}
	sc := plan.StatementContext{Stmt: stm, ReverseScan: storage.ReverseScanSupported}
	rs := sc.CheckRecordStrategy(false, perm)
	dir := sc.CheckScanDirection()
	emitStrategy(ctx, rs, dir)
	t.ingestPrepared(ctx, RangeSource(table, r, rs, dir))
	return nil
}

// PrepareThing ingests a single record identity. Deferable statements
// skip the existence fetch and resolve at write time.
func (t *Iterator) PrepareThing(ctx *Context, stm *query.Statement, rid cairn.RecordID) error {
	if tablePermission(ctx, rid.Table) == plan.PermissionNone {
		return nil
	}
	if stm.IsDeferable() {
		t.ingestPrepared(ctx, DeferSource(rid))
		return nil
	}
	t.ingestPrepared(ctx, ThingSource(rid))
	return nil
}

// PrepareYield ingests a table whose record identity is generated at
// execution time.
func (t *Iterator) PrepareYield(ctx *Context, stm *query.Statement, table string) error {
	if tablePermission(ctx, table) == plan.PermissionNone {
		return nil
	}
	t.ingestPrepared(ctx, YieldSource(table))
	return nil
}

// PrepareLookup ingests a graph traversal from one record.
func (t *Iterator) PrepareLookup(ctx *Context, stm *query.Statement, l Lookup) error {
	if tablePermission(ctx, l.From.Table) == plan.PermissionNone {
		return nil
	}
	t.ingestPrepared(ctx, LookupSource(l))
	return nil
}

// PrepareMergeable ingests an INSERT target plus its payload.
func (t *Iterator) PrepareMergeable(ctx *Context, rid cairn.RecordID, patch cairn.Value) error {
	if tablePermission(ctx, rid.Table) == plan.PermissionNone {
		return nil
	}
	t.ingestPrepared(ctx, MergeableSource(rid, patch))
	return nil
}

// PrepareRelatable ingests a RELATE triple plus an optional payload.
func (t *Iterator) PrepareRelatable(ctx *Context, from, with, to cairn.RecordID, data cairn.Value) error {
	if tablePermission(ctx, with.Table) == plan.PermissionNone {
		return nil
	}
	t.ingestPrepared(ctx, RelatableSource(from, with, to, data))
	return nil
}

// PrepareValue ingests an already-materialised value.
func (t *Iterator) PrepareValue(ctx *Context, v cairn.Value) error {
	t.ingestPrepared(ctx, ValueSource(v))
	return nil
}

func emitStrategy(ctx *Context, rs plan.RecordStrategy, dir plan.ScanDirection) {
	ctx.event(annotations.StrategySelected, map[string]interface{}{
		"record":    rs.String(),
		"direction": dir.String(),
	})
}

func (t *Iterator) ingestPrepared(ctx *Context, i Iterable) {
	ctx.event(annotations.SourceIngested, map[string]interface{}{"source": i.String()})
	t.Ingest(i)
}

func tablePermission(ctx *Context, table string) plan.GrantedPermission {
	if ctx.Planner == nil {
		return plan.PermissionFull
	}
	return ctx.Planner.Permission(table)
}
