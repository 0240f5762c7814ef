package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cairndb/cairn/cairn"
)

func init() {
	gob.Register(cairn.Object{})
	gob.Register(cairn.Array{})
	gob.Register(cairn.RecordID{})
	gob.Register(time.Time{})
}

// ReverseScanSupported reports the backend's backward-iteration
// capability. Badger iterators support Reverse natively, which is what
// makes the backward scan direction real.
const ReverseScanSupported = true

// Store is a BadgerDB-backed record store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at the given path. An empty path
// opens an in-memory store, which is what the tests use.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
		// Read-heavy workload tuning.
		opts.BlockCacheSize = 256 << 20
		opts.IndexCacheSize = 100 << 20
		opts.NumCompactors = 4
	}
	opts.Logger = nil
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a transaction. Callers must Discard it when done.
func (s *Store) Begin(writable bool) *Txn {
	return &Txn{txn: s.db.NewTransaction(writable)}
}

// Update runs fn in a read-write transaction and commits on success.
func (s *Store) Update(fn func(*Txn) error) error {
	txn := s.Begin(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(*Txn) error) error {
	txn := s.Begin(false)
	defer txn.Discard()
	return fn(txn)
}

// Txn wraps a Badger transaction with record-level operations.
type Txn struct {
	txn *badger.Txn
}

// Commit commits the transaction.
func (t *Txn) Commit() error { return t.txn.Commit() }

// Discard drops the transaction. Safe to call after Commit.
func (t *Txn) Discard() { t.txn.Discard() }

// Get returns the raw value stored at a key, or nil when absent.
func (t *Txn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a raw value at a key.
func (t *Txn) Set(key, val []byte) error { return t.txn.Set(key, val) }

// Delete removes a key.
func (t *Txn) Delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return nil
}

// GetRecord fetches a record by identity. A missing record yields
// cairn.None, not an error.
func (t *Txn) GetRecord(rid cairn.RecordID) (cairn.Value, error) {
	raw, err := t.Get(RecordKey(rid))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rid, err)
	}
	if raw == nil {
		return cairn.None, nil
	}
	return DecodeValue(raw)
}

// SetRecord writes a record value.
func (t *Txn) SetRecord(rid cairn.RecordID, val cairn.Value) error {
	raw, err := EncodeValue(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rid, err)
	}
	return t.Set(RecordKey(rid), raw)
}

// SetEdge writes a graph edge in one direction.
func (t *Txn) SetEdge(from cairn.RecordID, dir Dir, edge cairn.RecordID) error {
	return t.Set(EdgeKey(from, dir, edge), nil)
}

// ScanOptions configure a range scan.
type ScanOptions struct {
	// KeysOnly skips value prefetching; Cursor.Value returns nil.
	KeysOnly bool
	// Reverse iterates from the end of the range backwards.
	Reverse bool
}

// Scan opens a cursor over the half-open key interval [beg, end).
func (t *Txn) Scan(beg, end []byte, opts ScanOptions) *Cursor {
	iopts := badger.DefaultIteratorOptions
	iopts.PrefetchValues = !opts.KeysOnly
	if iopts.PrefetchValues {
		iopts.PrefetchSize = 1000
	}
	iopts.Reverse = opts.Reverse

	it := t.txn.NewIterator(iopts)
	c := &Cursor{it: it, beg: beg, end: end, reverse: opts.Reverse}
	if opts.Reverse {
		// Badger's reverse iterator seeks to the largest key <= the
		// seek target; the end bound is exclusive so step past it.
		it.Seek(end)
		for it.Valid() && bytes.Compare(it.Item().Key(), end) >= 0 {
			it.Next()
		}
	} else {
		it.Seek(beg)
	}
	return c
}

// Cursor walks a bounded key range in one direction.
type Cursor struct {
	it      *badger.Iterator
	beg     []byte
	end     []byte
	reverse bool
}

// Valid reports whether the cursor is positioned on an in-range entry.
func (c *Cursor) Valid() bool {
	if !c.it.Valid() {
		return false
	}
	key := c.it.Item().Key()
	if c.reverse {
		return bytes.Compare(key, c.beg) >= 0
	}
	return bytes.Compare(key, c.end) < 0
}

// Key returns a copy of the current key.
func (c *Cursor) Key() []byte {
	return c.it.Item().KeyCopy(nil)
}

// Value returns a copy of the current value.
func (c *Cursor) Value() ([]byte, error) {
	return c.it.Item().ValueCopy(nil)
}

// Next advances the cursor.
func (c *Cursor) Next() { c.it.Next() }

// Close releases the underlying iterator.
func (c *Cursor) Close() { c.it.Close() }

// EncodeValue serialises a value for storage.
func EncodeValue(v cairn.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserialises a stored value.
func DecodeValue(raw []byte) (cairn.Value, error) {
	var v cairn.Value
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
