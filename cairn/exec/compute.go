package exec

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/query"
)

// ValueProcessor is the minimal per-record processor: it materialises
// the record payload, stamps identities into object rows, and applies
// an optional predicate and plain-field projection. Permission checks,
// field pipelines and write application belong to the surrounding
// layer's processor.
type ValueProcessor struct {
	// Cond filters records; nil keeps everything.
	Cond func(ctx *Context, stm *query.Statement, pro *Processed) (bool, error)
}

func (p ValueProcessor) Compute(ctx *Context, stm *query.Statement, pro *Processed) (cairn.Value, error) {
	if p.Cond != nil {
		ok, err := p.Cond(ctx, stm, pro)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrIgnore
		}
	}
	v := materialize(pro)
	if len(stm.Fields) > 0 && !stm.HasGroup() {
		v = projectFields(stm.Fields, v)
	}
	return v, nil
}

// materialize turns one processed record into its output value.
func materialize(pro *Processed) cairn.Value {
	var v cairn.Value
	switch pro.Val.Kind {
	case OpInsert:
		v = pro.Val.Patch
	case OpRelate:
		obj := asObject(pro.Val.Value)
		if patch, ok := pro.Val.Patch.(cairn.Object); ok {
			for k, pv := range patch {
				obj[k] = pv
			}
		}
		obj["in"] = pro.Val.From
		obj["out"] = pro.Val.To
		v = obj
	default:
		v = pro.Val.Value
	}

	rid := pro.RID
	if rid == nil && pro.Generate != "" {
		id := cairn.NewRecordID(pro.Generate, generateKey())
		rid = &id
	}
	if rid == nil {
		return v
	}
	obj := asObject(v)
	obj["id"] = *rid
	return obj
}

// asObject returns a mutable object copy of v, or a fresh object when
// v is not an object.
func asObject(v cairn.Value) cairn.Object {
	if obj, ok := v.(cairn.Object); ok {
		out := make(cairn.Object, len(obj)+1)
		for k, ov := range obj {
			out[k] = ov
		}
		return out
	}
	return cairn.Object{}
}

// projectFields applies a plain (ungrouped) projection. An ungrouped
// count() contributes 1 per record.
func projectFields(fields []query.Field, v cairn.Value) cairn.Value {
	out := cairn.Object{}
	for _, f := range fields {
		if f.Aggregate == "count" && f.Path == "" {
			out[fieldName(f)] = int64(1)
			continue
		}
		out[fieldName(f)] = cairn.Pick(v, cairn.ParsePath(f.Path))
	}
	return out
}

// generateKey issues a random record key for generated identities.
func generateKey() string {
	var b [10]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

var _ Processor = ValueProcessor{}
