package model

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

/*
	Cmp compares the documents of two models structurally. Without
	content only kinds, object keys, vec and array lengths are matched;
	with content leaves are compared too. Timestamps are ignored.
*/
func Cmp(a, b *Model, content bool) bool {
	if a.hasRoot != b.hasRoot {
		return false
	}
	if !a.hasRoot {
		return true
	}
	return cmpAt(a, a.root, b, b.root, content, 0)
}

func cmpAt(ma *Model, a clock.Ts, mb *Model, b clock.Ts, content bool, depth int) bool {
	na, oka := ma.nodes[a]
	nb, okb := mb.nodes[b]
	if !oka || !okb {
		return oka == okb
	}
	if na.Kind() != nb.Kind() {
		return false
	}
	if depth > len(ma.nodes) {
		return false
	}
	depth++
	switch x := na.(type) {
	case *ConNode:
		y := nb.(*ConNode)
		if !content {
			return true
		}
		if x.IsRef != y.IsRef {
			return false
		}
		if x.IsRef {
			return cmpAt(ma, x.Ref, mb, y.Ref, content, depth)
		}
		return protocol.Equal(x.Value, y.Value)
	case *ValNode:
		y := nb.(*ValNode)
		return cmpAt(ma, x.Child, mb, y.Child, content, depth)
	case *ObjNode:
		y := nb.(*ObjNode)
		if len(x.Keys) != len(y.Keys) {
			return false
		}
		for k, ca := range x.Keys {
			cb, ok := y.Keys[k]
			if !ok || !cmpAt(ma, ca, mb, cb, content, depth) {
				return false
			}
		}
		return true
	case *VecNode:
		y := nb.(*VecNode)
		if x.Width() != y.Width() {
			return false
		}
		for i := 0; i < x.Width(); i++ {
			ca, oka := x.Slots[i]
			cb, okb := y.Slots[i]
			if oka != okb || (oka && !cmpAt(ma, ca, mb, cb, content, depth)) {
				return false
			}
		}
		return true
	case *StrNode:
		y := nb.(*StrNode)
		return !content || string(x.Seq.Live()) == string(y.Seq.Live())
	case *BinNode:
		y := nb.(*BinNode)
		return !content || string(x.Seq.Live()) == string(y.Seq.Live())
	case *ArrNode:
		y := nb.(*ArrNode)
		if x.Seq.Len() != y.Seq.Len() {
			return false
		}
		if !content {
			return true
		}
		la, lb := x.Seq.Live(), y.Seq.Live()
		for i := range la {
			if !cmpAt(ma, la[i], mb, lb[i], content, depth) {
				return false
			}
		}
		return true
	}
	return false
}

// CmpNode compares node metadata only: ids, and for containers the ids
// they point at. Leaf values are not looked at.
func CmpNode(a, b Node) bool {
	if a.ID() != b.ID() || a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *ValNode:
		return x.Child == b.(*ValNode).Child
	case *ObjNode:
		y := b.(*ObjNode)
		if len(x.Keys) != len(y.Keys) {
			return false
		}
		for k, v := range x.Keys {
			if w, ok := y.Keys[k]; !ok || w != v {
				return false
			}
		}
	case *VecNode:
		y := b.(*VecNode)
		if len(x.Slots) != len(y.Slots) {
			return false
		}
		for i, v := range x.Slots {
			if w, ok := y.Slots[i]; !ok || w != v {
				return false
			}
		}
	case *StrNode:
		y := b.(*StrNode)
		return x.Seq.LastID() == y.Seq.LastID() && x.Seq.Len() == y.Seq.Len()
	case *BinNode:
		y := b.(*BinNode)
		return x.Seq.LastID() == y.Seq.LastID() && x.Seq.Len() == y.Seq.Len()
	case *ArrNode:
		y := b.(*ArrNode)
		return x.Seq.LastID() == y.Seq.LastID() && x.Seq.Len() == y.Seq.Len()
	}
	return true
}
