package exec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/plan"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

// FileCollector spills every pushed row to a temp file so arbitrarily
// large result sets never hold more than one row in memory while
// collecting. Ordering and trimming are applied on drain.
type FileCollector struct {
	dir   string
	terms []query.OrderTerm

	f     *os.File
	w     *bufio.Writer
	count int

	sorted          bool
	skip, st, limit *int
	trim            bool
}

// NewFileCollector creates the disk-spilled collector writing into
// dir.
func NewFileCollector(dir string, terms []query.OrderTerm) *FileCollector {
	return &FileCollector{dir: dir, terms: terms}
}

func (c *FileCollector) Push(_ *Context, _ *query.Statement, _ plan.RecordStrategy, v cairn.Value) error {
	if c.f == nil {
		f, err := os.CreateTemp(c.dir, "cairn-results-*.tmp")
		if err != nil {
			return fmt.Errorf("create spill file: %w", err)
		}
		c.f = f
		c.w = bufio.NewWriter(f)
	}
	raw, err := storage.EncodeValue(v)
	if err != nil {
		return fmt.Errorf("encode spilled row: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(raw)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(raw); err != nil {
		return err
	}
	c.count++
	return nil
}

// Sort marks the drain as ordered; the file contents stay in push
// order until Take.
func (c *FileCollector) Sort() error {
	c.sorted = len(c.terms) > 0
	return nil
}

func (c *FileCollector) StartLimit(startSkip, start, limit *int) error {
	c.skip, c.st, c.limit = startSkip, start, limit
	c.trim = true
	return nil
}

// Len is the number of rows a drain would yield, accounting for any
// pending START/LIMIT trim.
func (c *FileCollector) Len() int {
	n := c.count
	if !c.trim {
		return n
	}
	if c.skip == nil && c.st != nil {
		if *c.st >= n {
			return 0
		}
		n -= *c.st
	}
	if c.limit != nil && *c.limit < n {
		n = *c.limit
	}
	return n
}

// Take reads the spill file back, applies ordering and trimming, and
// removes the file.
func (c *FileCollector) Take() ([]cairn.Value, error) {
	if c.f == nil {
		return nil, nil
	}
	defer c.reset()

	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	r := bufio.NewReader(c.f)
	vals := make([]cairn.Value, 0, c.count)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read spill file: %w", err)
		}
		raw := make([]byte, binary.BigEndian.Uint32(hdr[:]))
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("read spill file: %w", err)
		}
		v, err := storage.DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}

	if c.sorted {
		sort.SliceStable(vals, func(i, j int) bool {
			return compareOrder(c.terms, vals[i], vals[j]) < 0
		})
	}
	if c.trim {
		vals = trimStartLimit(vals, c.skip, c.st, c.limit)
	}
	return vals, nil
}

func (c *FileCollector) reset() {
	name := c.f.Name()
	c.f.Close()
	os.Remove(name)
	c.f, c.w, c.count = nil, nil, 0
	c.sorted, c.trim = false, false
	c.skip, c.st, c.limit = nil, nil, nil
}

func (c *FileCollector) Explain(e *Explanation) {
	e.Add("Collector", cairn.Object{"type": "File", "dir": c.dir})
}
