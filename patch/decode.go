package patch

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

var ErrUnknownOp = errors.New("patch: unknown opcode")

func invalid(err error) error {
	return fmt.Errorf("%w: %v", joy_errors.ErrInvalidPatch, err)
}

// Decode parses the binary wire form. Bytes after the last op are ignored.
func Decode(data []byte) (*Patch, error) {
	r := buffers.NewReader(data)
	p, err := DecodeFrom(r)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeCompat is Decode with the permissive policy of the reference
// decoder: malformed input yields an empty patch unless it looks like
// JSON text.
func DecodeCompat(data []byte) (*Patch, error) {
	p, err := Decode(data)
	if err == nil {
		return p, nil
	}
	if len(data) > 0 && data[0] == '{' {
		return nil, err
	}
	return &Patch{}, nil
}

func DecodeFrom(r *buffers.Reader) (*Patch, error) {
	sid, err := protocol.ReadVu57(r)
	if err != nil {
		return nil, invalid(err)
	}
	time, err := protocol.ReadVu57(r)
	if err != nil {
		return nil, invalid(err)
	}
	meta, err := protocol.ReadCBOR(r)
	if err != nil {
		return nil, invalid(err)
	}
	if meta == protocol.Undefined {
		meta = nil
	}
	count, err := protocol.ReadVu57(r)
	if err != nil {
		return nil, invalid(err)
	}
	if count > uint64(r.Remaining()) {
		return nil, invalid(buffers.ErrShortRead)
	}
	p := &Patch{ID: clock.Ts{Sid: sid, Time: time}, Meta: meta, Ops: make([]Op, 0, count)}
	cur := p.ID
	for i := uint64(0); i < count; i++ {
		op, err := decodeOp(r, sid, cur)
		if err != nil {
			return nil, invalid(err)
		}
		p.Ops = append(p.Ops, op)
		cur = cur.Tick(op.Span())
	}
	return p, nil
}

type opReader struct {
	r   *buffers.Reader
	sid uint64
	err error
}

func (o *opReader) id() (ts clock.Ts) {
	if o.err != nil {
		return
	}
	ts, o.err = protocol.ReadID(o.r, o.sid)
	return
}

func (o *opReader) vu57() (v uint64) {
	if o.err != nil {
		return
	}
	v, o.err = protocol.ReadVu57(o.r)
	return
}

func (o *opReader) u8() (b byte) {
	if o.err != nil {
		return
	}
	b, o.err = o.r.U8()
	return
}

func (o *opReader) buf(n uint64) []byte {
	if o.err != nil {
		return nil
	}
	if n > uint64(o.r.Remaining()) {
		o.err = buffers.ErrShortRead
		return nil
	}
	b, err := o.r.Buf(int(n))
	o.err = err
	return b
}

// count reads a list length and bounds it by what is left to read.
func (o *opReader) count(inline byte) uint64 {
	n := uint64(inline)
	if inline == 0 {
		n = o.vu57()
	}
	if o.err == nil && n > uint64(o.r.Remaining()) {
		o.err = buffers.ErrShortRead
	}
	return n
}

func decodeOp(r *buffers.Reader, sid uint64, id clock.Ts) (op Op, err error) {
	octet, err := r.U8()
	if err != nil {
		return op, err
	}
	code, inline := OpCode(octet>>3), octet&0x07
	op = Op{Code: code, ID: id}
	o := &opReader{r: r, sid: sid}
	switch code {
	case OpNewCon:
		if inline != 0 {
			op.IsRef = true
			op.Ref = o.id()
		} else {
			op.Value, o.err = protocol.ReadCBOR(r)
		}
	case OpNewVal, OpNewObj, OpNewVec, OpNewStr, OpNewBin, OpNewArr:
	case OpInsVal:
		op.Obj = o.id()
		op.Val = o.id()
	case OpInsObj:
		n := o.count(inline)
		op.Obj = o.id()
		for i := uint64(0); i < n && o.err == nil; i++ {
			var key string
			key, o.err = protocol.ReadCBORText(r)
			op.Keys = append(op.Keys, ObjEntry{Key: key, Val: o.id()})
		}
	case OpInsVec:
		n := o.count(inline)
		op.Obj = o.id()
		for i := uint64(0); i < n && o.err == nil; i++ {
			idx := o.u8()
			op.Slots = append(op.Slots, VecEntry{Index: idx, Val: o.id()})
		}
	case OpInsStr:
		n := o.count(inline)
		op.Obj = o.id()
		op.Ref = o.id()
		b := o.buf(n)
		if o.err == nil && !utf8.Valid(b) {
			o.err = errors.New("invalid utf-8 in ins_str")
		}
		op.Text = string(b)
	case OpInsBin:
		n := o.count(inline)
		op.Obj = o.id()
		op.Ref = o.id()
		op.Data = append([]byte(nil), o.buf(n)...)
	case OpInsArr:
		n := o.count(inline)
		op.Obj = o.id()
		op.Ref = o.id()
		for i := uint64(0); i < n && o.err == nil; i++ {
			op.Vals = append(op.Vals, o.id())
		}
	case OpUpdArr:
		op.Obj = o.id()
		op.Ref = o.id()
		op.Val = o.id()
	case OpDel:
		n := o.count(inline)
		op.Obj = o.id()
		for i := uint64(0); i < n && o.err == nil; i++ {
			ts := o.id()
			op.Spans = append(op.Spans, ts.Span(o.vu57()))
		}
	case OpNop:
		if inline != 0 {
			op.Len = uint64(inline)
		} else {
			op.Len = o.vu57()
		}
	default:
		return op, fmt.Errorf("%w %d", ErrUnknownOp, code)
	}
	return op, o.err
}
