package model

import (
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
)

func applyErr(op *patch.Op, format string, args ...any) error {
	return fmt.Errorf("%w: %s at %s: %s", joy_errors.ErrApplyFailure, op.Code, op.ID, fmt.Sprintf(format, args...))
}

var targetKinds = map[patch.OpCode][]Kind{
	patch.OpInsVal: {KindVal},
	patch.OpInsObj: {KindObj},
	patch.OpInsVec: {KindVec},
	patch.OpInsStr: {KindStr},
	patch.OpInsBin: {KindBin},
	patch.OpInsArr: {KindArr},
	patch.OpUpdArr: {KindArr},
	patch.OpDel:    {KindStr, KindBin, KindArr},
}

var newKinds = map[patch.OpCode]Kind{
	patch.OpNewCon: KindCon,
	patch.OpNewVal: KindVal,
	patch.OpNewObj: KindObj,
	patch.OpNewVec: KindVec,
	patch.OpNewStr: KindStr,
	patch.OpNewBin: KindBin,
	patch.OpNewArr: KindArr,
}

// validate checks the whole patch before anything is mutated.
func (m *Model) validate(p *patch.Patch) error {
	if m.opaque != nil {
		return fmt.Errorf("%w: opaque model", joy_errors.ErrApplyFailure)
	}
	created := map[clock.Ts]Kind{}
	for i := range p.Ops {
		op := &p.Ops[i]
		if m.server && op.ID.Sid != clock.SidServer {
			return applyErr(op, "session %d on a server clock model", op.ID.Sid)
		}
		if kind, ok := newKinds[op.Code]; ok {
			if _, exists := m.nodes[op.ID]; !exists {
				created[op.ID] = kind
			}
			continue
		}
		want, ok := targetKinds[op.Code]
		if !ok {
			continue
		}
		if op.Code == patch.OpInsVal && op.Obj.IsOrigin() {
			continue
		}
		kind, known := created[op.Obj]
		if n, exists := m.nodes[op.Obj]; exists {
			kind, known = n.Kind(), true
		}
		if !known {
			continue
		}
		match := false
		for _, k := range want {
			match = match || k == kind
		}
		if !match {
			return applyErr(op, "target %s is %s", op.Obj, kind)
		}
	}
	return nil
}

/*
	Apply runs every op of the patch or none: the patch is validated up
	front and rejected with ErrApplyFailure on a kind mismatch. Ops that
	reference unknown nodes are skipped. Replaying a patch is a no-op.
*/
func (m *Model) Apply(p *patch.Patch) error {
	if err := m.validate(p); err != nil {
		return err
	}
	for i := range p.Ops {
		op := &p.Ops[i]
		m.applyOp(op)
		span := op.Span()
		m.observed.Observe(op.ID, span)
		if m.server {
			if end := op.ID.Time + span - 1; end > m.serverTime {
				m.serverTime = end
			}
		}
	}
	return nil
}

func (m *Model) applyOp(op *patch.Op) {
	id := op.ID
	switch op.Code {
	case patch.OpNewCon:
		if _, ok := m.nodes[id]; !ok {
			if op.IsRef {
				m.nodes[id] = NewConRef(id, op.Ref)
			} else {
				m.nodes[id] = NewCon(id, op.Value)
			}
		}
	case patch.OpNewVal, patch.OpNewObj, patch.OpNewVec, patch.OpNewStr, patch.OpNewBin, patch.OpNewArr:
		if _, ok := m.nodes[id]; !ok {
			m.nodes[id] = newNode(op.Code, id)
		}
	case patch.OpInsVal:
		m.insVal(op)
	case patch.OpInsObj:
		obj, ok := m.nodes[op.Obj].(*ObjNode)
		if !ok {
			return
		}
		for _, e := range op.Keys {
			if !m.acceptChild(op.Obj, e.Val) {
				continue
			}
			if old, ok := obj.Keys[e.Key]; !ok || old.Less(e.Val) {
				obj.Keys[e.Key] = e.Val
			}
		}
	case patch.OpInsVec:
		vec, ok := m.nodes[op.Obj].(*VecNode)
		if !ok {
			return
		}
		for _, e := range op.Slots {
			if !m.acceptChild(op.Obj, e.Val) {
				continue
			}
			idx := int(e.Index)
			if old, ok := vec.Slots[idx]; !ok || old.Less(e.Val) {
				vec.Slots[idx] = e.Val
			}
		}
	case patch.OpInsStr:
		if str, ok := m.nodes[op.Obj].(*StrNode); ok && op.Text != "" {
			str.Seq.Insert(op.Obj, op.Ref, id, []rune(op.Text))
		}
	case patch.OpInsBin:
		if bin, ok := m.nodes[op.Obj].(*BinNode); ok && len(op.Data) > 0 {
			bin.Seq.Insert(op.Obj, op.Ref, id, op.Data)
		}
	case patch.OpInsArr:
		if arr, ok := m.nodes[op.Obj].(*ArrNode); ok {
			m.insArr(arr, op)
		}
	case patch.OpUpdArr:
		arr, ok := m.nodes[op.Obj].(*ArrNode)
		if !ok {
			return
		}
		if _, ok := m.nodes[op.Val]; !ok {
			return
		}
		if slot, ok := arr.Seq.Get(op.Ref); ok && (slot.IsOrigin() || slot.Less(op.Val)) {
			arr.Seq.Update(op.Ref, op.Val)
		}
	case patch.OpDel:
		switch n := m.nodes[op.Obj].(type) {
		case *StrNode:
			n.Seq.Delete(op.Spans)
		case *BinNode:
			n.Seq.Delete(op.Spans)
		case *ArrNode:
			n.Seq.Delete(op.Spans)
		}
	}
}

func newNode(code patch.OpCode, id clock.Ts) Node {
	switch code {
	case patch.OpNewVal:
		return NewVal(id)
	case patch.OpNewObj:
		return NewObj(id)
	case patch.OpNewVec:
		return NewVec(id)
	case patch.OpNewStr:
		return NewStr(id)
	case patch.OpNewBin:
		return NewBin(id)
	}
	return NewArr(id)
}

// acceptChild gates container writes: the child must exist and be
// newer than the container.
func (m *Model) acceptChild(container, child clock.Ts) bool {
	if _, ok := m.nodes[child]; !ok {
		return false
	}
	return container.Time < child.Time
}

func (m *Model) insVal(op *patch.Op) {
	if _, ok := m.nodes[op.Val]; !ok {
		return
	}
	if op.Obj.IsOrigin() {
		if !m.hasRoot || m.root.Less(op.Val) {
			m.root, m.hasRoot = op.Val, true
		}
		return
	}
	reg, ok := m.nodes[op.Obj].(*ValNode)
	if !ok {
		return
	}
	if reg.Child.Sid != clock.SidSystem && !reg.Child.Less(op.Val) {
		return
	}
	if !reg.id.Less(op.Val) {
		return
	}
	reg.Child = op.Val
}

// insArr inserts the accepted values. Rejected ones still consume their
// slot ids, so accepted runs land one after another at the same place.
func (m *Model) insArr(arr *ArrNode, op *patch.Op) {
	pos := -1
	for i := 0; i < len(op.Vals); {
		if !m.acceptChild(op.Obj, op.Vals[i]) {
			i++
			continue
		}
		j := i
		for j < len(op.Vals) && m.acceptChild(op.Obj, op.Vals[j]) {
			j++
		}
		runID := op.ID.Tick(uint64(i))
		if pos < 0 {
			p, ok := arr.Seq.Insert(op.Obj, op.Ref, runID, op.Vals[i:j])
			if !ok {
				return
			}
			pos = p
		} else if !arr.Seq.Has(runID) {
			pos++
			arr.Seq.InsertAt(pos, runID, op.Vals[i:j])
		}
		i = j
	}
}
