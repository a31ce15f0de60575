package patch

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// Schema describes a node tree that can be emitted into a builder.
type Schema interface {
	Build(b *Builder) clock.Ts
}

type (
	// SchemaCon is a constant. Undefined is allowed.
	SchemaCon struct{ Value any }
	// SchemaConRef is a constant holding a timestamp.
	SchemaConRef struct{ Ref clock.Ts }
	SchemaStr    string
	SchemaBin    []byte
	// SchemaVal is a register initialised with its child.
	SchemaVal struct{ Child Schema }
	// SchemaVec holds its children at their indices; nil entries are
	// left unwritten.
	SchemaVec []Schema
	SchemaArr []Schema
	// SchemaObj lists required keys first, then optional ones.
	SchemaObj struct{ Req, Opt []SchemaField }
	// SchemaExt is an extension: a vec of a [id, sid, time] header
	// constant and the data node.
	SchemaExt struct {
		ID   uint8
		Data Schema
	}
)

type SchemaField struct {
	Key  string
	Node Schema
}

func (s SchemaCon) Build(b *Builder) clock.Ts    { return b.Con(s.Value) }
func (s SchemaConRef) Build(b *Builder) clock.Ts { return b.ConRef(s.Ref) }

func (s SchemaStr) Build(b *Builder) clock.Ts {
	id := b.Str()
	if s != "" {
		b.InsStr(id, id, string(s))
	}
	return id
}

func (s SchemaBin) Build(b *Builder) clock.Ts {
	id := b.Bin()
	if len(s) > 0 {
		b.InsBin(id, id, []byte(s))
	}
	return id
}

func (s SchemaVal) Build(b *Builder) clock.Ts {
	id := b.Val()
	b.SetVal(id, s.Child.Build(b))
	return id
}

func (s SchemaVec) Build(b *Builder) clock.Ts {
	id := b.Vec()
	var slots []VecEntry
	for i, item := range s {
		if item != nil {
			slots = append(slots, VecEntry{Index: uint8(i), Val: item.Build(b)})
		}
	}
	if len(slots) > 0 {
		b.InsVec(id, slots)
	}
	return id
}

func (s SchemaArr) Build(b *Builder) clock.Ts {
	id := b.Arr()
	if len(s) > 0 {
		vals := make([]clock.Ts, len(s))
		for i, item := range s {
			vals[i] = item.Build(b)
		}
		b.InsArr(id, id, vals)
	}
	return id
}

func (s SchemaObj) Build(b *Builder) clock.Ts {
	id := b.Obj()
	var entries []ObjEntry
	for _, f := range append(append([]SchemaField{}, s.Req...), s.Opt...) {
		entries = append(entries, ObjEntry{Key: f.Key, Val: f.Node.Build(b)})
	}
	if len(entries) > 0 {
		b.InsObj(id, entries)
	}
	return id
}

func (s SchemaExt) Build(b *Builder) clock.Ts {
	id := b.Vec()
	header := b.Con([]any{int64(s.ID), int64(id.Sid % 256), int64(id.Time % 256)})
	data := s.Data.Build(b)
	b.InsVec(id, []VecEntry{{0, header}, {1, data}})
	return id
}

/*
	SchemaJSON maps a normalized JSON value onto a schema: top level and
	array scalars become registers over constants, object member scalars
	are plain constants, strings are str nodes. []byte becomes bin.
*/
func SchemaJSON(v any) Schema {
	switch x := v.(type) {
	case string:
		return SchemaStr(x)
	case []byte:
		return SchemaBin(x)
	case []any:
		arr := make(SchemaArr, len(x))
		for i, e := range x {
			arr[i] = SchemaJSON(e)
		}
		return arr
	case map[string]any:
		obj := SchemaObj{}
		for _, k := range utils.SortedKeys(x) {
			obj.Req = append(obj.Req, SchemaField{Key: k, Node: schemaMember(x[k])})
		}
		return obj
	}
	return SchemaVal{Child: SchemaCon{Value: v}}
}

func schemaMember(v any) Schema {
	if protocol.IsScalar(v) {
		return SchemaCon{Value: v}
	}
	return SchemaJSON(v)
}

// SchemaPatch builds the schema on a fresh builder over c and points the
// document root at it.
func SchemaPatch(s Schema, c clock.Clock) *Patch {
	b := NewBuilder(c)
	b.Root(s.Build(b))
	return b.Flush()
}
