package patch

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// Builder accumulates ops into a patch, stamping each with the clock.
type Builder struct {
	Clock clock.Clock
	patch *Patch
}

func NewBuilder(c clock.Clock) *Builder {
	return &Builder{Clock: c, patch: &Patch{}}
}

// Patch is the patch built so far.
func (b *Builder) Patch() *Patch {
	return b.patch
}

// Flush hands out the accumulated patch and starts a new one.
func (b *Builder) Flush() *Patch {
	p := b.patch
	b.patch = &Patch{}
	return p
}

// Pad inserts a nop when the clock ran ahead of the last op, so the ids
// of the patch stay contiguous.
func (b *Builder) Pad() {
	if b.patch.Empty() {
		return
	}
	now := b.Clock.Now()
	next := b.patch.NextTime()
	if now.Time > next {
		b.patch.Ops = append(b.patch.Ops, Op{
			Code: OpNop,
			ID:   clock.Ts{Sid: b.patch.ID.Sid, Time: next},
			Len:  now.Time - next,
		})
	}
}

func (b *Builder) push(op Op) clock.Ts {
	b.Pad()
	op.ID = b.Clock.Tick(op.Span())
	if b.patch.Empty() {
		b.patch.ID = op.ID
	}
	b.patch.Ops = append(b.patch.Ops, op)
	return op.ID
}

func (b *Builder) Con(v any) clock.Ts {
	return b.push(Op{Code: OpNewCon, Value: v})
}

func (b *Builder) ConRef(ref clock.Ts) clock.Ts {
	return b.push(Op{Code: OpNewCon, IsRef: true, Ref: ref})
}

func (b *Builder) Val() clock.Ts { return b.push(Op{Code: OpNewVal}) }
func (b *Builder) Obj() clock.Ts { return b.push(Op{Code: OpNewObj}) }
func (b *Builder) Vec() clock.Ts { return b.push(Op{Code: OpNewVec}) }
func (b *Builder) Str() clock.Ts { return b.push(Op{Code: OpNewStr}) }
func (b *Builder) Bin() clock.Ts { return b.push(Op{Code: OpNewBin}) }
func (b *Builder) Arr() clock.Ts { return b.push(Op{Code: OpNewArr}) }

func (b *Builder) SetVal(obj, val clock.Ts) clock.Ts {
	return b.push(Op{Code: OpInsVal, Obj: obj, Val: val})
}

// Root points the document root at val.
func (b *Builder) Root(val clock.Ts) clock.Ts {
	return b.SetVal(clock.Origin, val)
}

func (b *Builder) InsObj(obj clock.Ts, entries []ObjEntry) clock.Ts {
	return b.push(Op{Code: OpInsObj, Obj: obj, Keys: entries})
}

func (b *Builder) InsVec(obj clock.Ts, slots []VecEntry) clock.Ts {
	return b.push(Op{Code: OpInsVec, Obj: obj, Slots: slots})
}

func (b *Builder) InsStr(obj, after clock.Ts, text string) clock.Ts {
	return b.push(Op{Code: OpInsStr, Obj: obj, Ref: after, Text: text})
}

func (b *Builder) InsBin(obj, after clock.Ts, data []byte) clock.Ts {
	return b.push(Op{Code: OpInsBin, Obj: obj, Ref: after, Data: data})
}

func (b *Builder) InsArr(obj, after clock.Ts, vals []clock.Ts) clock.Ts {
	return b.push(Op{Code: OpInsArr, Obj: obj, Ref: after, Vals: vals})
}

func (b *Builder) UpdArr(obj, slot, val clock.Ts) clock.Ts {
	return b.push(Op{Code: OpUpdArr, Obj: obj, Ref: slot, Val: val})
}

func (b *Builder) Del(obj clock.Ts, spans []clock.Tss) clock.Ts {
	return b.push(Op{Code: OpDel, Obj: obj, Spans: spans})
}

func (b *Builder) Nop(n uint64) clock.Ts {
	return b.push(Op{Code: OpNop, Len: n})
}

/*
	JSON emits the ops constructing v and returns the id of its node.
	v must already be normalized. Object members that are scalars are
	stored as constants; array elements that are scalars are wrapped in
	val registers so they can be replaced in place later. []byte becomes
	a bin node.
*/
func (b *Builder) JSON(v any) clock.Ts {
	switch x := v.(type) {
	case string:
		id := b.Str()
		if x != "" {
			b.InsStr(id, id, x)
		}
		return id
	case []byte:
		id := b.Bin()
		if len(x) > 0 {
			b.InsBin(id, id, x)
		}
		return id
	case []any:
		id := b.Arr()
		if len(x) > 0 {
			vals := make([]clock.Ts, len(x))
			for i, e := range x {
				vals[i] = b.ArrElement(e)
			}
			b.InsArr(id, id, vals)
		}
		return id
	case map[string]any:
		id := b.Obj()
		if len(x) > 0 {
			entries := make([]ObjEntry, 0, len(x))
			for _, k := range utils.SortedKeys(x) {
				entries = append(entries, ObjEntry{Key: k, Val: b.JSON(x[k])})
			}
			b.InsObj(id, entries)
		}
		return id
	}
	return b.Con(v)
}

// ArrElement builds one array element: scalars go into a val register.
func (b *Builder) ArrElement(v any) clock.Ts {
	if !protocol.IsScalar(v) {
		return b.JSON(v)
	}
	reg := b.Val()
	b.SetVal(reg, b.Con(v))
	return reg
}

// Tuple builds a vec node holding the given elements at their indices.
func (b *Builder) Tuple(items []any) clock.Ts {
	id := b.Vec()
	if len(items) > 0 {
		slots := make([]VecEntry, len(items))
		for i, e := range items {
			slots[i] = VecEntry{Index: uint8(i), Val: b.JSON(e)}
		}
		b.InsVec(id, slots)
	}
	return id
}
