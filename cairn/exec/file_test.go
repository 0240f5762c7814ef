package exec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/query"
)

func TestFileCollectorRoundTrip(t *testing.T) {
	c := NewFileCollector(t.TempDir(), nil)
	stm := &query.Statement{}

	rows := []cairn.Value{
		cairn.Object{"n": int64(1), "s": "one"},
		cairn.Object{"n": int64(2), "nested": cairn.Object{"ok": true}},
		cairn.Array{int64(1), "two", 3.0},
	}
	for _, r := range rows {
		require.NoError(t, c.Push(nil, stm, 0, r))
	}
	assert.Equal(t, 3, c.Len())

	vals, err := c.Take()
	require.NoError(t, err)
	assert.Equal(t, rows, vals)
}

func TestFileCollectorSortedDrain(t *testing.T) {
	c := NewFileCollector(t.TempDir(), []query.OrderTerm{{Path: "n"}})
	stm := &query.Statement{}
	for _, n := range []int64{3, 1, 2} {
		require.NoError(t, c.Push(nil, stm, 0, cairn.Object{"n": n}))
	}
	require.NoError(t, c.Sort())

	vals, err := c.Take()
	require.NoError(t, err)
	var got []int64
	for _, v := range vals {
		got = append(got, v.(cairn.Object)["n"].(int64))
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestFileCollectorStartLimitTrims(t *testing.T) {
	c := NewFileCollector(t.TempDir(), []query.OrderTerm{{Path: "n"}})
	stm := &query.Statement{}
	for _, n := range []int64{4, 0, 3, 1, 2} {
		require.NoError(t, c.Push(nil, stm, 0, cairn.Object{"n": n}))
	}
	require.NoError(t, c.Sort())
	start, limit := 1, 2
	require.NoError(t, c.StartLimit(nil, &start, &limit))
	// Len reflects the trim before the drain happens.
	assert.Equal(t, 2, c.Len())

	vals, err := c.Take()
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, int64(1), vals[0].(cairn.Object)["n"])
	assert.Equal(t, int64(2), vals[1].(cairn.Object)["n"])
}

func TestFileCollectorLenAfterTrim(t *testing.T) {
	c := NewFileCollector(t.TempDir(), nil)
	stm := &query.Statement{}
	for n := int64(0); n < 3; n++ {
		require.NoError(t, c.Push(nil, stm, 0, cairn.Object{"n": n}))
	}

	// START beyond the row count drains to nothing.
	start := 5
	require.NoError(t, c.StartLimit(nil, &start, nil))
	assert.Zero(t, c.Len())

	// A storage-level skip already consumed START, so only LIMIT trims.
	skip, limit := 0, 2
	require.NoError(t, c.StartLimit(&skip, &start, &limit))
	assert.Equal(t, 2, c.Len())
}

func TestFileCollectorRemovesSpillFile(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCollector(dir, nil)
	stm := &query.Statement{}
	require.NoError(t, c.Push(nil, stm, 0, cairn.Object{"n": int64(1)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = c.Take()
	require.NoError(t, err)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, c.Len())

	// Drained collector yields nothing until rows arrive again.
	vals, err := c.Take()
	require.NoError(t, err)
	assert.Nil(t, vals)
}
