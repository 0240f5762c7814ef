package cairn

import "fmt"

// RecordID identifies a single record: a table name plus a key within
// that table. Keys are scalar values (string, int64, float64).
type RecordID struct {
	Table string
	Key   Value
}

// NewRecordID creates a record identity.
func NewRecordID(table string, key Value) RecordID {
	return RecordID{Table: table, Key: key}
}

func (r RecordID) String() string {
	switch k := r.Key.(type) {
	case string:
		return r.Table + ":" + k
	default:
		return fmt.Sprintf("%s:%v", r.Table, k)
	}
}

// Equal reports whether two record identities refer to the same record.
func (r RecordID) Equal(o RecordID) bool {
	return r.Table == o.Table && Compare(r.Key, o.Key) == 0
}

// Bound is one end of a key range.
type Bound struct {
	Key       Value
	Inclusive bool
	Unbounded bool
}

// Include returns an inclusive bound on a key.
func Include(key Value) Bound { return Bound{Key: key, Inclusive: true} }

// Exclude returns an exclusive bound on a key.
func Exclude(key Value) Bound { return Bound{Key: key} }

// Unbounded returns an open bound.
func Unbounded() Bound { return Bound{Unbounded: true} }

// KeyRange is a bounded range of record keys within a single table,
// used by range scans and time-series style access.
type KeyRange struct {
	Beg Bound
	End Bound
}

func (k KeyRange) String() string {
	s := ""
	if !k.Beg.Unbounded {
		s += FormatValue(k.Beg.Key)
		if !k.Beg.Inclusive {
			s += ">"
		}
	}
	s += ".."
	if !k.End.Unbounded {
		if k.End.Inclusive {
			s += "="
		}
		s += FormatValue(k.End.Key)
	}
	return s
}
