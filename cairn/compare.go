package cairn

import (
	"strings"
	"time"
)

// Compare orders two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Nil sorts before any non-nil value. Numeric types compare across
// int/int64/float64. Values of different non-numeric types compare by
// a fixed type order so sorting is total and deterministic.
func Compare(left, right Value) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	lt, rt := typeOrder(left), typeOrder(right)
	if lt != rt {
		return compareInts(int64(lt), int64(rt))
	}

	switch l := left.(type) {
	case bool:
		r := right.(bool)
		if l == r {
			return 0
		}
		if !l {
			return -1
		}
		return 1
	case int:
		return compareNumeric(int64(l), right)
	case int64:
		return compareNumeric(l, right)
	case float64:
		return compareFloat(l, right)
	case string:
		return strings.Compare(l, right.(string))
	case time.Time:
		r := right.(time.Time)
		switch {
		case l.Before(r):
			return -1
		case l.After(r):
			return 1
		}
		return 0
	case RecordID:
		r := right.(RecordID)
		if c := strings.Compare(l.Table, r.Table); c != 0 {
			return c
		}
		return Compare(l.Key, r.Key)
	case Array:
		r := right.(Array)
		for i := 0; i < len(l) && i < len(r); i++ {
			if c := Compare(l[i], r[i]); c != 0 {
				return c
			}
		}
		return compareInts(int64(len(l)), int64(len(r)))
	default:
		// Objects and unknown types: compare rendered form.
		return strings.Compare(FormatValue(left), FormatValue(right))
	}
}

// typeOrder assigns a rank to each value type so cross-type
// comparisons are stable. Numeric types share a rank.
func typeOrder(v Value) int {
	switch v.(type) {
	case bool:
		return 1
	case int, int64, float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	case RecordID:
		return 5
	case Array:
		return 6
	case Object:
		return 7
	default:
		return 8
	}
}

func compareNumeric(left int64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareInts(left, int64(r))
	case int64:
		return compareInts(left, r)
	case float64:
		return compareFloats(float64(left), r)
	}
	return -1
}

func compareFloat(left float64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareFloats(left, float64(r))
	case int64:
		return compareFloats(left, float64(r))
	case float64:
		return compareFloats(left, r)
	}
	return -1
}

func compareInts(l, r int64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func compareFloats(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}
