package diff

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// caps are the node kinds a walk may edit in place besides objects and
// registers. Meeting an uncovered kind refuses the layer.
type caps struct {
	arr bool
	bin bool
	str bool
}

func walkLayer(c caps) func(d *differ) error {
	return func(d *differ) error {
		root, ok := d.m.Root()
		if !ok {
			return errRefuse
		}
		d.caps = c
		replace, err := d.walk(root, d.target)
		if err != nil {
			return err
		}
		if replace {
			return errRefuse
		}
		return nil
	}
}

func (d *differ) view(id clock.Ts) (any, bool) {
	return d.m.ViewNode(id)
}

/*
	walk edits the node at id towards dst. It returns replace when the
	node cannot become dst in place and the parent has to point at a
	fresh node instead.
*/
func (d *differ) walk(id clock.Ts, dst any) (replace bool, err error) {
	if v, ok := d.view(id); ok && protocol.Equal(v, dst) {
		return false, nil
	}
	n, ok := d.m.Resolve(id)
	if !ok {
		return true, nil
	}
	switch x := n.(type) {
	case *model.ValNode:
		replace, err := d.walk(x.Child, dst)
		if err != nil {
			return false, err
		}
		if replace {
			d.b.SetVal(x.ID(), d.b.JSON(dst))
		}
		return false, nil
	case *model.ObjNode:
		if m, ok := dst.(map[string]any); ok {
			return false, d.object(x, m)
		}
	case *model.ArrNode:
		if a, ok := dst.([]any); ok {
			if !d.caps.arr {
				return false, errRefuse
			}
			return false, d.array(x, a)
		}
	case *model.VecNode:
		if a, ok := dst.([]any); ok && len(a) >= d.m.VecLen(x) && len(a) <= 256 {
			if !d.caps.arr {
				return false, errRefuse
			}
			return false, d.vec(x, a)
		}
	case *model.StrNode:
		if s, ok := dst.(string); ok {
			if !d.caps.str {
				return false, errRefuse
			}
			d.str(x, s)
			return false, nil
		}
	case *model.BinNode:
		if m, ok := dst.(map[string]any); ok {
			if data, ok := binTarget(m); ok {
				if !d.caps.bin {
					return false, errRefuse
				}
				d.bin(x, data)
				return false, nil
			}
		}
	}
	return true, nil
}

// object emits one ins_obj: deletions first, then changed keys in
// order. Children that can be edited in place are not rewritten.
func (d *differ) object(obj *model.ObjNode, dst map[string]any) error {
	src := map[string]any{}
	for k, child := range obj.Keys {
		if v, ok := d.view(child); ok {
			src[k] = v
		}
	}
	entries := d.deletions(src, dst)
	for _, k := range utils.SortedKeys(dst) {
		v := dst[k]
		old, ok := src[k]
		if ok && protocol.Equal(old, v) {
			continue
		}
		if ok {
			replace, err := d.walk(obj.Keys[k], v)
			if err != nil {
				return err
			}
			if !replace {
				continue
			}
		}
		entries = append(entries, patch.ObjEntry{Key: k, Val: d.b.JSON(v)})
	}
	if len(entries) > 0 {
		d.b.InsObj(obj.ID(), entries)
	}
	return nil
}

type element struct {
	slot  clock.Ts
	child clock.Ts
	view  any
}

/*
	array keeps the common prefix and suffix, edits the paired middle
	elements, tombstones leftover source elements with undefined and
	inserts leftover target elements after the last kept one.
*/
func (d *differ) array(arr *model.ArrNode, dst []any) error {
	var src []element
	for _, it := range arr.Seq.Items() {
		if v, ok := d.view(it.Value); ok {
			src = append(src, element{slot: it.ID, child: it.Value, view: v})
		}
	}
	pre := 0
	for pre < len(src) && pre < len(dst) && protocol.Equal(src[pre].view, dst[pre]) {
		pre++
	}
	suf := 0
	for suf < len(src)-pre && suf < len(dst)-pre && protocol.Equal(src[len(src)-1-suf].view, dst[len(dst)-1-suf]) {
		suf++
	}
	from, to := src[pre:len(src)-suf], dst[pre:len(dst)-suf]

	after := arr.ID()
	if pre > 0 {
		after = src[pre-1].slot
	}
	i := 0
	for ; i < len(from) && i < len(to); i++ {
		replace, err := d.walk(from[i].child, to[i])
		if err != nil {
			return err
		}
		if replace {
			d.b.UpdArr(arr.ID(), from[i].slot, d.b.ArrElement(to[i]))
		}
		after = from[i].slot
	}
	for _, e := range from[i:] {
		d.b.UpdArr(arr.ID(), e.slot, d.b.Con(protocol.Undefined))
	}
	if i < len(to) {
		vals := make([]clock.Ts, 0, len(to)-i)
		for _, v := range to[i:] {
			vals = append(vals, d.b.ArrElement(v))
		}
		d.b.InsArr(arr.ID(), after, vals)
	}
	return nil
}

// vec rewrites changed indices with one ins_vec.
func (d *differ) vec(vec *model.VecNode, dst []any) error {
	var entries []patch.VecEntry
	for i, v := range dst {
		child, ok := vec.Slots[i]
		if ok {
			if old, present := d.view(child); present && protocol.Equal(old, v) {
				continue
			}
			replace, err := d.walk(child, v)
			if err != nil {
				return err
			}
			if !replace {
				continue
			}
		} else if v == nil {
			continue
		}
		entries = append(entries, patch.VecEntry{Index: uint8(i), Val: d.b.JSON(v)})
	}
	if len(entries) > 0 {
		d.b.InsVec(vec.ID(), entries)
	}
	return nil
}
