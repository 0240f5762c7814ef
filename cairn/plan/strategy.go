// Package plan holds the planner-facing side of the execution core:
// the record-strategy and scan-direction decisions, permission
// classification, and the opaque-reference table through which the
// engine drives index iterators without knowing their representation.
package plan

import (
	"github.com/cairndb/cairn/cairn/query"
)

// RecordStrategy is how much of each record a scan needs to fetch.
type RecordStrategy int

const (
	// KeysAndValues fetches full records.
	KeysAndValues RecordStrategy = iota
	// KeysOnly stops at key level; values are never decoded.
	KeysOnly
	// Count only counts matching keys.
	Count
)

func (r RecordStrategy) String() string {
	switch r {
	case KeysOnly:
		return "KeysOnly"
	case Count:
		return "Count"
	}
	return "KeysAndValues"
}

// ScanDirection is the key order a storage scan walks in.
type ScanDirection int

const (
	Forward ScanDirection = iota
	Backward
)

func (s ScanDirection) String() string {
	if s == Backward {
		return "Backward"
	}
	return "Forward"
}

// GrantedPermission classifies table access for the current session.
type GrantedPermission int

const (
	// PermissionNone denies access; the table contributes no iterable.
	PermissionNone GrantedPermission = iota
	// PermissionFull grants unconditional access.
	PermissionFull
	// PermissionSpecific requires a per-record permission clause to be
	// evaluated, which forces value fetching and forbids start-skip.
	PermissionSpecific
)

func (g GrantedPermission) String() string {
	switch g {
	case PermissionFull:
		return "Full"
	case PermissionSpecific:
		return "Specific"
	}
	return "None"
}

// StatementContext carries the statement shape and backend
// capabilities needed by the strategy decisions.
type StatementContext struct {
	Stmt *query.Statement
	// ReverseScan reports whether the storage backend supports
	// backward iteration. Without it the direction decision degrades
	// to Forward.
	ReverseScan bool
}

// CheckRecordStrategy decides the single record strategy governing an
// entire statement execution. condCovered reports whether the WHERE
// clause is fully satisfied by the chosen index iterator(s).
func (c *StatementContext) CheckRecordStrategy(condCovered bool, p GrantedPermission) RecordStrategy {
	stm := c.Stmt
	switch {
	// Mutations need values to remove old index entries and hydrate
	// live-query diffs.
	case stm.Writeable():
		return KeysAndValues
	// Residual WHERE filtering needs the value.
	case stm.Cond != nil && !condCovered:
		return KeysAndValues
	// Grouping on fields needs the values being grouped.
	case stm.HasGroup() && !stm.GroupAll():
		return KeysAndValues
	// Ordering on record fields needs those fields.
	case ordersNeedValues(stm):
		return KeysAndValues
	// Per-record permissions must be evaluated against the value.
	case p == PermissionSpecific:
		return KeysAndValues
	// count() ... GROUP ALL never decodes anything.
	case stm.CountAllOnly() && stm.GroupAll():
		return Count
	// Any other projection needs values.
	case !stm.CountAllOnly():
		return KeysAndValues
	default:
		return KeysOnly
	}
}

// CheckScanDirection decides the scan direction. Backward is only
// chosen when the backend supports it and the first ORDER BY term is
// the identity field descending; everything else degrades to Forward.
func (c *StatementContext) CheckScanDirection() ScanDirection {
	if c.ReverseScan && c.Stmt.OrderFirstIDDesc() {
		return Backward
	}
	return Forward
}

// ordersNeedValues reports whether ORDER BY names record fields beyond
// the identity, which is derivable from the key alone.
func ordersNeedValues(stm *query.Statement) bool {
	if stm.Order == nil || stm.Order.Random {
		return false
	}
	for _, t := range stm.Order.Terms {
		if t.Path != "id" {
			return true
		}
	}
	return false
}
