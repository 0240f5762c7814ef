package cairn

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareScalars(t *testing.T) {
	tests := []struct {
		name  string
		left  Value
		right Value
		want  int
	}{
		{"nil before everything", nil, int64(0), -1},
		{"nil equals nil", nil, nil, 0},
		{"bool order", false, true, -1},
		{"int order", int64(1), int64(2), -1},
		{"int equals", int64(5), int64(5), 0},
		{"cross numeric int float", int64(2), 2.5, -1},
		{"cross numeric equal", int64(2), 2.0, 0},
		{"plain int vs int64", 3, int64(3), 0},
		{"string order", "abc", "abd", -1},
		{"bool before number", true, int64(0), -1},
		{"number before string", int64(99), "a", -1},
		{"string before time", "z", time.Unix(0, 0), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.left, tt.right))
			assert.Equal(t, -tt.want, Compare(tt.right, tt.left))
		})
	}
}

func TestCompareRecordIDs(t *testing.T) {
	a := NewRecordID("person", "alice")
	b := NewRecordID("person", "bob")
	c := NewRecordID("pet", "alice")

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 0, Compare(a, a))
	// Table compares before key.
	assert.Equal(t, -1, Compare(a, c))
}

func TestCompareArrays(t *testing.T) {
	assert.Equal(t, -1, Compare(Array{int64(1)}, Array{int64(2)}))
	assert.Equal(t, -1, Compare(Array{int64(1)}, Array{int64(1), int64(0)}))
	assert.Equal(t, 0, Compare(Array{"a", int64(1)}, Array{"a", int64(1)}))
}

func TestCompareIsTotal(t *testing.T) {
	vals := []Value{
		nil, true, false, int64(3), 2.5, "x", time.Unix(10, 0),
		NewRecordID("t", "k"), Array{int64(1)}, Object{"a": int64(1)},
	}
	sort.SliceStable(vals, func(i, j int) bool { return Compare(vals[i], vals[j]) < 0 })
	for i := 1; i < len(vals); i++ {
		assert.LessOrEqual(t, Compare(vals[i-1], vals[i]), 0)
	}
}
