// Package cairn defines the base value model shared by every layer of
// the database: dynamic values, record identities, key ranges, and the
// comparison and path operations the execution engine is built on.
package cairn

import (
	"fmt"
	"sort"
	"strings"
)

// Value is any value the database can store or return. Concrete types
// are the usual dynamic set: nil, bool, int64, float64, string,
// time.Time, Object, Array, and RecordID.
type Value = interface{}

// Object is a string-keyed document value.
type Object = map[string]Value

// Array is an ordered collection of values.
type Array = []Value

// None is the absent value returned when a record or path does not
// exist. It is distinct from an explicit nil stored in a document only
// by convention; the engine treats both as absent.
var None Value = nil

// Truthy reports whether a value is considered true in a condition.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case Array:
		return len(x) > 0
	case Object:
		return len(x) > 0
	default:
		return true
	}
}

// CopyValue makes a deep copy of a value. Objects and arrays are
// copied recursively; scalar values are returned as-is.
func CopyValue(v Value) Value {
	switch x := v.(type) {
	case Object:
		out := make(Object, len(x))
		for k, e := range x {
			out[k] = CopyValue(e)
		}
		return out
	case Array:
		out := make(Array, len(x))
		for i, e := range x {
			out[i] = CopyValue(e)
		}
		return out
	default:
		return v
	}
}

// Pick returns the value at a dotted path inside a value, or nil when
// any path segment is missing. Arrays are traversed element-wise: the
// result is an Array of each element's picked value.
func Pick(v Value, path []string) Value {
	if len(path) == 0 {
		return v
	}
	switch x := v.(type) {
	case Object:
		return Pick(x[path[0]], path[1:])
	case Array:
		out := make(Array, 0, len(x))
		for _, e := range x {
			out = append(out, Pick(e, path))
		}
		return out
	default:
		return nil
	}
}

// SetPath sets the value at a dotted path inside an object, creating
// intermediate objects as required. The root must be an Object.
func SetPath(v Value, path []string, val Value) {
	obj, ok := v.(Object)
	if !ok || len(path) == 0 {
		return
	}
	if len(path) == 1 {
		obj[path[0]] = val
		return
	}
	next, ok := obj[path[0]].(Object)
	if !ok {
		next = Object{}
		obj[path[0]] = next
	}
	SetPath(next, path[1:], val)
}

// ParsePath splits a dotted path expression into its segments.
func ParsePath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// FormatValue renders a value for display and for stable group keys.
// Object keys are emitted in sorted order so the output is
// deterministic.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "NONE"
	case string:
		return fmt.Sprintf("%q", x)
	case RecordID:
		return x.String()
	case Object:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, FormatValue(x[k]))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case Array:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
