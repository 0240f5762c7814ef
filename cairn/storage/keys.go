// Package storage provides the BadgerDB-backed record and graph-edge
// store used by the execution engine. Keys are encoded so that a
// table's records are contiguous and ordered by record key, which is
// what makes forward and backward range scans meaningful.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cairndb/cairn/cairn"
)

// Key space prefixes. Records and edges live in disjoint ranges.
const (
	recordTag = 'r'
	edgeTag   = 'e'
	sep       = 0x00
	term      = 0xff
)

// Dir is the traversal direction of a graph edge.
type Dir byte

const (
	DirOut Dir = iota + 1
	DirIn
	DirBoth
)

func (d Dir) String() string {
	switch d {
	case DirOut:
		return "->"
	case DirIn:
		return "<-"
	case DirBoth:
		return "<->"
	}
	return "?"
}

// Value key encoding tags. The tag ordering matches cairn.Compare for
// the scalar types usable as record keys, so byte order equals value
// order.
const (
	tagInt    = 0x10
	tagFloat  = 0x11
	tagString = 0x20
)

// EncodeKeyValue encodes a scalar record key so that byte comparison
// preserves value ordering within a type, and numeric keys sort before
// string keys.
func EncodeKeyValue(buf []byte, key cairn.Value) []byte {
	switch k := key.(type) {
	case int:
		return encodeInt(buf, int64(k))
	case int64:
		return encodeInt(buf, k)
	case float64:
		buf = append(buf, tagFloat)
		bits := math.Float64bits(k)
		if k >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return binary.BigEndian.AppendUint64(buf, bits)
	case string:
		buf = append(buf, tagString)
		buf = append(buf, k...)
		return buf
	default:
		buf = append(buf, tagString)
		buf = append(buf, fmt.Sprintf("%v", k)...)
		return buf
	}
}

func encodeInt(buf []byte, k int64) []byte {
	buf = append(buf, tagInt)
	return binary.BigEndian.AppendUint64(buf, uint64(k)^(1<<63))
}

// DecodeKeyValue decodes a scalar record key produced by
// EncodeKeyValue.
func DecodeKeyValue(b []byte) (cairn.Value, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty key value")
	}
	switch b[0] {
	case tagInt:
		if len(b) != 9 {
			return nil, fmt.Errorf("malformed int key")
		}
		return int64(binary.BigEndian.Uint64(b[1:]) ^ (1 << 63)), nil
	case tagFloat:
		if len(b) != 9 {
			return nil, fmt.Errorf("malformed float key")
		}
		bits := binary.BigEndian.Uint64(b[1:])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), nil
	case tagString:
		return string(b[1:]), nil
	}
	return nil, fmt.Errorf("unknown key value tag 0x%02x", b[0])
}

// RecordKey encodes the storage key for a record.
func RecordKey(rid cairn.RecordID) []byte {
	buf := make([]byte, 0, len(rid.Table)+16)
	buf = append(buf, recordTag, sep)
	buf = append(buf, rid.Table...)
	buf = append(buf, sep)
	return EncodeKeyValue(buf, rid.Key)
}

// TablePrefix returns the first key of a table's record range.
func TablePrefix(table string) []byte {
	buf := make([]byte, 0, len(table)+4)
	buf = append(buf, recordTag, sep)
	buf = append(buf, table...)
	buf = append(buf, sep)
	return buf
}

// TableSuffix returns the exclusive upper bound of a table's record
// range.
func TableSuffix(table string) []byte {
	buf := make([]byte, 0, len(table)+4)
	buf = append(buf, recordTag, sep)
	buf = append(buf, table...)
	buf = append(buf, term)
	return buf
}

// DecodeRecordKey decodes a record storage key back to its identity.
func DecodeRecordKey(key []byte) (cairn.RecordID, error) {
	if len(key) < 3 || key[0] != recordTag || key[1] != sep {
		return cairn.RecordID{}, fmt.Errorf("not a record key")
	}
	rest := key[2:]
	i := bytes.IndexByte(rest, sep)
	if i < 0 {
		return cairn.RecordID{}, fmt.Errorf("malformed record key")
	}
	table := string(rest[:i])
	k, err := DecodeKeyValue(rest[i+1:])
	if err != nil {
		return cairn.RecordID{}, err
	}
	return cairn.RecordID{Table: table, Key: k}, nil
}

// RangeBounds converts a key range over a table into storage scan
// bounds. Exclusive begin and inclusive end bounds are realised by
// appending a zero byte, which is the smallest possible key extension.
func RangeBounds(table string, r cairn.KeyRange) (beg, end []byte) {
	switch {
	case r.Beg.Unbounded:
		beg = TablePrefix(table)
	case r.Beg.Inclusive:
		beg = RecordKey(cairn.RecordID{Table: table, Key: r.Beg.Key})
	default:
		beg = append(RecordKey(cairn.RecordID{Table: table, Key: r.Beg.Key}), sep)
	}
	switch {
	case r.End.Unbounded:
		end = TableSuffix(table)
	case r.End.Inclusive:
		end = append(RecordKey(cairn.RecordID{Table: table, Key: r.End.Key}), sep)
	default:
		end = RecordKey(cairn.RecordID{Table: table, Key: r.End.Key})
	}
	return beg, end
}

// EdgeKey encodes the storage key for a graph edge from a record to
// the edge record that represents the relation.
func EdgeKey(from cairn.RecordID, dir Dir, edge cairn.RecordID) []byte {
	buf := make([]byte, 0, len(from.Table)+len(edge.Table)+24)
	buf = append(buf, edgeTag, sep)
	buf = append(buf, from.Table...)
	buf = append(buf, sep)
	buf = EncodeKeyValue(buf, from.Key)
	buf = append(buf, sep, byte(dir), sep)
	buf = append(buf, edge.Table...)
	buf = append(buf, sep)
	return EncodeKeyValue(buf, edge.Key)
}

// EdgePrefix bounds all edges of a record regardless of direction.
func EdgePrefix(from cairn.RecordID) (beg, end []byte) {
	return bounds(edgeBase(from))
}

// EdgeDirPrefix bounds the edges of a record in one direction.
func EdgeDirPrefix(from cairn.RecordID, dir Dir) (beg, end []byte) {
	return bounds(append(edgeBase(from), sep, byte(dir)))
}

// EdgeTargetPrefix bounds the edges of a record in one direction that
// point at edge records in a specific table.
func EdgeTargetPrefix(from cairn.RecordID, dir Dir, table string) (beg, end []byte) {
	base := append(edgeBase(from), sep, byte(dir), sep)
	return bounds(append(base, table...))
}

// bounds derives the half-open scan interval covering every key that
// extends base. The two results never alias.
func bounds(base []byte) (beg, end []byte) {
	beg = make([]byte, len(base)+1)
	copy(beg, base)
	beg[len(base)] = sep
	end = make([]byte, len(base)+1)
	copy(end, base)
	end[len(base)] = term
	return beg, end
}

func edgeBase(from cairn.RecordID) []byte {
	buf := make([]byte, 0, len(from.Table)+16)
	buf = append(buf, edgeTag, sep)
	buf = append(buf, from.Table...)
	buf = append(buf, sep)
	return EncodeKeyValue(buf, from.Key)
}

// DecodeEdgeKey decodes an edge key into its source identity,
// direction, and the edge record identity.
func DecodeEdgeKey(key []byte) (from cairn.RecordID, dir Dir, edge cairn.RecordID, err error) {
	if len(key) < 3 || key[0] != edgeTag || key[1] != sep {
		err = fmt.Errorf("not an edge key")
		return
	}
	rest := key[2:]
	i := bytes.IndexByte(rest, sep)
	if i < 0 {
		err = fmt.Errorf("malformed edge key")
		return
	}
	from.Table = string(rest[:i])
	rest = rest[i+1:]

	// The encoded key value has a known length for numeric tags;
	// string keys run to the next separator.
	var klen int
	if klen, err = encodedKeyLen(rest); err != nil {
		return
	}
	if from.Key, err = DecodeKeyValue(rest[:klen]); err != nil {
		return
	}
	rest = rest[klen:]
	if len(rest) < 4 || rest[0] != sep || rest[2] != sep {
		err = fmt.Errorf("malformed edge key")
		return
	}
	dir = Dir(rest[1])
	rest = rest[3:]
	if i = bytes.IndexByte(rest, sep); i < 0 {
		err = fmt.Errorf("malformed edge key")
		return
	}
	edge.Table = string(rest[:i])
	edge.Key, err = DecodeKeyValue(rest[i+1:])
	return
}

func encodedKeyLen(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty encoded key")
	}
	switch b[0] {
	case tagInt, tagFloat:
		if len(b) < 9 {
			return 0, fmt.Errorf("truncated numeric key")
		}
		return 9, nil
	case tagString:
		if i := bytes.IndexByte(b, sep); i >= 0 {
			return i, nil
		}
		return len(b), nil
	}
	return 0, fmt.Errorf("unknown key value tag 0x%02x", b[0])
}
