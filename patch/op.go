// Package patch defines CRDT operations, the patch that bundles them,
// the binary and compact codecs, the patch log and the patch builder.
package patch

import (
	"fmt"
	"unicode/utf8"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

type OpCode byte

const (
	OpNewCon OpCode = 0
	OpNewVal OpCode = 1
	OpNewObj OpCode = 2
	OpNewVec OpCode = 3
	OpNewStr OpCode = 4
	OpNewBin OpCode = 5
	OpNewArr OpCode = 6
	OpInsVal OpCode = 9
	OpInsObj OpCode = 10
	OpInsVec OpCode = 11
	OpInsStr OpCode = 12
	OpInsBin OpCode = 13
	OpInsArr OpCode = 14
	OpUpdArr OpCode = 15
	OpDel    OpCode = 16
	OpNop    OpCode = 17
)

var opNames = map[OpCode]string{
	OpNewCon: "new_con",
	OpNewVal: "new_val",
	OpNewObj: "new_obj",
	OpNewVec: "new_vec",
	OpNewStr: "new_str",
	OpNewBin: "new_bin",
	OpNewArr: "new_arr",
	OpInsVal: "ins_val",
	OpInsObj: "ins_obj",
	OpInsVec: "ins_vec",
	OpInsStr: "ins_str",
	OpInsBin: "ins_bin",
	OpInsArr: "ins_arr",
	OpUpdArr: "upd_arr",
	OpDel:    "del",
	OpNop:    "nop",
}

func (c OpCode) String() string {
	if name, ok := opNames[c]; ok {
		return name
	}
	return fmt.Sprintf("op%d", byte(c))
}

func (c OpCode) Valid() bool {
	_, ok := opNames[c]
	return ok
}

// IsNew reports whether the op creates a node.
func (c OpCode) IsNew() bool {
	return c <= OpNewArr
}

type ObjEntry struct {
	Key string
	Val clock.Ts
}

type VecEntry struct {
	Index uint8
	Val   clock.Ts
}

/*
	Op is a single CRDT operation. Which fields matter depends on Code:

	new_con   Value, or Ref when IsRef
	ins_val   Obj, Val
	ins_obj   Obj, Keys
	ins_vec   Obj, Slots
	ins_str   Obj, Ref (insert after), Text
	ins_bin   Obj, Ref, Data
	ins_arr   Obj, Ref, Vals
	upd_arr   Obj, Ref (slot), Val
	del       Obj, Spans
	nop       Len
*/
type Op struct {
	Code  OpCode
	ID    clock.Ts
	Obj   clock.Ts
	Ref   clock.Ts
	Val   clock.Ts
	Value any
	IsRef bool
	Keys  []ObjEntry
	Slots []VecEntry
	Text  string
	Data  []byte
	Vals  []clock.Ts
	Spans []clock.Tss
	Len   uint64
}

// Span is how many timestamps the op occupies. Aggregates that carry
// nothing still take one so their ids never collide with the next op.
func (op *Op) Span() uint64 {
	var n uint64
	switch op.Code {
	case OpInsObj:
		n = uint64(len(op.Keys))
	case OpInsVec:
		n = uint64(len(op.Slots))
	case OpInsStr:
		n = uint64(utf8.RuneCountInString(op.Text))
	case OpInsBin:
		n = uint64(len(op.Data))
	case OpInsArr:
		n = uint64(len(op.Vals))
	case OpDel:
		for _, s := range op.Spans {
			n += s.Span
		}
	case OpNop:
		n = op.Len
	default:
		return 1
	}
	if n == 0 {
		return 1
	}
	return n
}

// Target is the container the op writes into; ORIGIN for new_* and nop.
func (op *Op) Target() clock.Ts {
	switch op.Code {
	case OpInsVal, OpInsObj, OpInsVec, OpInsStr, OpInsBin, OpInsArr, OpUpdArr, OpDel:
		return op.Obj
	}
	return clock.Origin
}

func (op *Op) Clone() Op {
	c := *op
	c.Keys = append([]ObjEntry(nil), op.Keys...)
	c.Slots = append([]VecEntry(nil), op.Slots...)
	c.Data = append([]byte(nil), op.Data...)
	c.Vals = append([]clock.Ts(nil), op.Vals...)
	c.Spans = append([]clock.Tss(nil), op.Spans...)
	return c
}

func (op *Op) String() string {
	switch op.Code {
	case OpNewCon:
		if op.IsRef {
			return fmt.Sprintf("%s %s ref %s", op.Code, op.ID, op.Ref)
		}
		return fmt.Sprintf("%s %s %v", op.Code, op.ID, op.Value)
	case OpInsVal:
		return fmt.Sprintf("%s %s %s <- %s", op.Code, op.ID, op.Obj, op.Val)
	case OpInsObj:
		return fmt.Sprintf("%s %s %s %v", op.Code, op.ID, op.Obj, op.Keys)
	case OpInsVec:
		return fmt.Sprintf("%s %s %s %v", op.Code, op.ID, op.Obj, op.Slots)
	case OpInsStr:
		return fmt.Sprintf("%s %s %s after %s %q", op.Code, op.ID, op.Obj, op.Ref, op.Text)
	case OpInsBin:
		return fmt.Sprintf("%s %s %s after %s %x", op.Code, op.ID, op.Obj, op.Ref, op.Data)
	case OpInsArr:
		return fmt.Sprintf("%s %s %s after %s %v", op.Code, op.ID, op.Obj, op.Ref, op.Vals)
	case OpUpdArr:
		return fmt.Sprintf("%s %s %s slot %s <- %s", op.Code, op.ID, op.Obj, op.Ref, op.Val)
	case OpDel:
		return fmt.Sprintf("%s %s %s %v", op.Code, op.ID, op.Obj, op.Spans)
	case OpNop:
		return fmt.Sprintf("%s %s !%d", op.Code, op.ID, op.Len)
	}
	return fmt.Sprintf("%s %s", op.Code, op.ID)
}
