package patch

import (
	"unicode/utf8"

	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

// Encode writes the binary wire form:
//
//	vu57 sid, vu57 time, cbor meta, vu57 op count, ops
func Encode(p *Patch) ([]byte, error) {
	w := buffers.NewWriter(64 + 8*len(p.Ops))
	if err := EncodeTo(w, p); err != nil {
		return nil, err
	}
	return w.Flush(), nil
}

func EncodeTo(w *buffers.Writer, p *Patch) error {
	protocol.WriteVu57(w, p.ID.Sid)
	protocol.WriteVu57(w, p.ID.Time)
	if p.Meta == nil {
		w.U8(0xf7)
	} else if err := protocol.WriteCBOR(w, p.Meta); err != nil {
		return err
	}
	protocol.WriteVu57(w, uint64(len(p.Ops)))
	sid := p.ID.Sid
	for i := range p.Ops {
		if err := encodeOp(w, sid, &p.Ops[i]); err != nil {
			return err
		}
	}
	return nil
}

// writeOpLen folds lengths 1..7 into the opcode octet.
func writeOpLen(w *buffers.Writer, code OpCode, n uint64) {
	if n > 0 && n <= 7 {
		w.U8(byte(code)<<3 | byte(n))
		return
	}
	w.U8(byte(code) << 3)
	protocol.WriteVu57(w, n)
}

func encodeOp(w *buffers.Writer, sid uint64, op *Op) error {
	switch op.Code {
	case OpNewCon:
		if op.IsRef {
			writeOpLen(w, OpNewCon, 1)
			protocol.WriteID(w, sid, op.Ref)
			return nil
		}
		w.U8(0)
		return protocol.WriteCBOR(w, op.Value)
	case OpNewVal, OpNewObj, OpNewVec, OpNewStr, OpNewBin, OpNewArr:
		w.U8(byte(op.Code) << 3)
	case OpInsVal:
		w.U8(byte(OpInsVal) << 3)
		protocol.WriteID(w, sid, op.Obj)
		protocol.WriteID(w, sid, op.Val)
	case OpInsObj:
		writeOpLen(w, OpInsObj, uint64(len(op.Keys)))
		protocol.WriteID(w, sid, op.Obj)
		for _, e := range op.Keys {
			protocol.WriteCBORText(w, e.Key)
			protocol.WriteID(w, sid, e.Val)
		}
	case OpInsVec:
		writeOpLen(w, OpInsVec, uint64(len(op.Slots)))
		protocol.WriteID(w, sid, op.Obj)
		for _, e := range op.Slots {
			w.U8(e.Index)
			protocol.WriteID(w, sid, e.Val)
		}
	case OpInsStr:
		encodeInsStr(w, sid, op)
	case OpInsBin:
		writeOpLen(w, OpInsBin, uint64(len(op.Data)))
		protocol.WriteID(w, sid, op.Obj)
		protocol.WriteID(w, sid, op.Ref)
		w.Bytes(op.Data)
	case OpInsArr:
		writeOpLen(w, OpInsArr, uint64(len(op.Vals)))
		protocol.WriteID(w, sid, op.Obj)
		protocol.WriteID(w, sid, op.Ref)
		for _, v := range op.Vals {
			protocol.WriteID(w, sid, v)
		}
	case OpUpdArr:
		w.U8(byte(OpUpdArr) << 3)
		protocol.WriteID(w, sid, op.Obj)
		protocol.WriteID(w, sid, op.Ref)
		protocol.WriteID(w, sid, op.Val)
	case OpDel:
		writeOpLen(w, OpDel, uint64(len(op.Spans)))
		protocol.WriteID(w, sid, op.Obj)
		for _, s := range op.Spans {
			protocol.WriteID(w, sid, s.Ts())
			protocol.WriteVu57(w, s.Span)
		}
	case OpNop:
		writeOpLen(w, OpNop, op.Len)
	default:
		return ErrUnknownOp
	}
	return nil
}

// encodeInsStr writes the header with the character count first, then
// rewrites it with the byte length once the UTF-8 payload is known.
// Offsets are kept relative to X0 because growth moves the buffer.
func encodeInsStr(w *buffers.Writer, sid uint64, op *Op) {
	start := w.X - w.X0
	chars := uint64(utf8.RuneCountInString(op.Text))
	writeOpLen(w, OpInsStr, chars)
	head := w.X - w.X0
	protocol.WriteID(w, sid, op.Obj)
	protocol.WriteID(w, sid, op.Ref)
	n := uint64(w.Utf8(op.Text))
	if n == chars {
		return
	}
	body := append([]byte(nil), w.Buf[w.X0+head:w.X]...)
	w.X = w.X0 + start
	writeOpLen(w, OpInsStr, n)
	w.Bytes(body)
}
