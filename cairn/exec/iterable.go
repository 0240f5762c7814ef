package exec

import (
	"fmt"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/storage"
)

// IterableKind discriminates the closed set of data sources an
// Iterator can consume. Every switch over it must be exhaustive.
type IterableKind int

const (
	// IterValue is an already-materialised value, not backed by
	// storage.
	IterValue IterableKind = iota
	// IterDefer is a record identity written without confirming
	// existence first (CREATE-style "error if exists" semantics).
	IterDefer
	// IterYield is a table whose record is generated at execution
	// time (guaranteed yields, CREATE without an id).
	IterYield
	// IterThing is a single record identity to fetch then process.
	IterThing
	// IterLookup traverses graph edges from one record.
	IterLookup
	// IterTable is a full table scan.
	IterTable
	// IterRange is a bounded key-range scan.
	IterRange
	// IterMergeable carries an INSERT payload alongside its target.
	IterMergeable
	// IterRelatable carries RELATE endpoints and an optional payload.
	IterRelatable
	// IterIndex is driven by a previously-built index plan.
	IterIndex
)

func (k IterableKind) String() string {
	switch k {
	case IterValue:
		return "Value"
	case IterDefer:
		return "Defer"
	case IterYield:
		return "Yield"
	case IterThing:
		return "Thing"
	case IterLookup:
		return "Lookup"
	case IterTable:
		return "Table"
	case IterRange:
		return "Range"
	case IterMergeable:
		return "Mergeable"
	case IterRelatable:
		return "Relatable"
	case IterIndex:
		return "Index"
	}
	return "Unknown"
}

// Lookup describes a graph traversal from one record to a computed
// set of target subjects.
type Lookup struct {
	Dir  storage.Dir
	From cairn.RecordID
	// What restricts the traversal to edge records in these tables;
	// empty means all edges in the direction.
	What []string
}

// Iterable is one logical data source ingested into an Iterator.
// Immutable and cheaply cloneable; the fields used depend on Kind.
type Iterable struct {
	Kind IterableKind

	Value cairn.Value     // IterValue
	RID   cairn.RecordID  // IterDefer, IterThing, IterMergeable
	Table string          // IterYield, IterTable, IterRange, IterIndex
	Range cairn.KeyRange  // IterRange
	Look  Lookup          // IterLookup
	Patch cairn.Value     // IterMergeable
	From  cairn.RecordID  // IterRelatable
	With  cairn.RecordID  // IterRelatable: the relation record itself
	To    cairn.RecordID  // IterRelatable
	Data  cairn.Value     // IterRelatable optional payload
	Ref   plan.IteratorRef // IterIndex

	Strategy  plan.RecordStrategy
	Direction plan.ScanDirection
}

func (i Iterable) String() string {
	switch i.Kind {
	case IterValue:
		return fmt.Sprintf("Value(%s)", cairn.FormatValue(i.Value))
	case IterDefer, IterThing, IterMergeable:
		return fmt.Sprintf("%s(%s)", i.Kind, i.RID)
	case IterYield:
		return fmt.Sprintf("Yield(%s)", i.Table)
	case IterLookup:
		return fmt.Sprintf("Lookup(%s%s)", i.Look.From, i.Look.Dir)
	case IterTable:
		return fmt.Sprintf("Table(%s, %s, %s)", i.Table, i.Strategy, i.Direction)
	case IterRange:
		return fmt.Sprintf("Range(%s:%s, %s, %s)", i.Table, i.Range, i.Strategy, i.Direction)
	case IterRelatable:
		return fmt.Sprintf("Relatable(%s->%s->%s)", i.From, i.With, i.To)
	case IterIndex:
		return fmt.Sprintf("Index(%s, ref=%d, %s)", i.Table, i.Ref, i.Strategy)
	}
	return "Iterable(?)"
}

// Constructors for each variant.

func ValueSource(v cairn.Value) Iterable { return Iterable{Kind: IterValue, Value: v} }

func DeferSource(rid cairn.RecordID) Iterable { return Iterable{Kind: IterDefer, RID: rid} }

func YieldSource(table string) Iterable { return Iterable{Kind: IterYield, Table: table} }

func ThingSource(rid cairn.RecordID) Iterable { return Iterable{Kind: IterThing, RID: rid} }

func LookupSource(l Lookup) Iterable { return Iterable{Kind: IterLookup, Look: l} }

func TableSource(table string, rs plan.RecordStrategy, sc plan.ScanDirection) Iterable {
	return Iterable{Kind: IterTable, Table: table, Strategy: rs, Direction: sc}
}

func RangeSource(table string, r cairn.KeyRange, rs plan.RecordStrategy, sc plan.ScanDirection) Iterable {
	return Iterable{Kind: IterRange, Table: table, Range: r, Strategy: rs, Direction: sc}
}

func MergeableSource(rid cairn.RecordID, patch cairn.Value) Iterable {
	return Iterable{Kind: IterMergeable, RID: rid, Patch: patch}
}

func RelatableSource(from, with, to cairn.RecordID, data cairn.Value) Iterable {
	return Iterable{Kind: IterRelatable, From: from, With: with, To: to, Data: data}
}

func IndexSource(table string, ref plan.IteratorRef, rs plan.RecordStrategy) Iterable {
	return Iterable{Kind: IterIndex, Table: table, Ref: ref, Strategy: rs}
}

// OperableKind discriminates the payload carried into per-record
// processing.
type OperableKind int

const (
	// OpValue is a fetched or materialised record value.
	OpValue OperableKind = iota
	// OpInsert carries the original record plus the insert payload.
	OpInsert
	// OpRelate carries the relation endpoints plus an optional
	// payload.
	OpRelate
	// OpCount is a pre-counted batch from a Count-strategy scan.
	OpCount
)

// Operable is the payload of one processed record.
type Operable struct {
	Kind  OperableKind
	Value cairn.Value    // OpValue, OpInsert (original), OpRelate (relation record)
	Patch cairn.Value    // OpInsert payload, OpRelate payload
	From  cairn.RecordID // OpRelate
	To    cairn.RecordID // OpRelate
	Count int            // OpCount
}

// Processed is the unit flowing from an Iterable's execution into the
// collector: the governing strategy, the resolved identity (if any),
// the payload, and optional index-iteration metadata.
type Processed struct {
	Strategy plan.RecordStrategy
	// Generate names the table an identity must be generated in
	// before the record is written (yield sources).
	Generate string
	RID      *cairn.RecordID
	Val      Operable
	IR       *plan.IteratorRecord
}
