package patch

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

var ErrBadCompact = errors.New("patch: invalid compact form")

func compactTs(sid uint64, ts clock.Ts) any {
	if ts.Sid == sid {
		return int64(ts.Time)
	}
	return []any{int64(ts.Sid), int64(ts.Time)}
}

func compactTss(sid uint64, s clock.Tss) any {
	if s.Sid == sid {
		return []any{int64(s.Time), int64(s.Span)}
	}
	return []any{int64(s.Sid), int64(s.Time), int64(s.Span)}
}

/*
	EncodeCompact renders the patch as nested arrays: a header row,
	[time] for the server session or [[sid, time]] otherwise, followed
	by one row per op headed by its opcode.
*/
func EncodeCompact(p *Patch) []any {
	sid := p.ID.Sid
	var header []any
	if sid == clock.SidServer {
		header = []any{int64(p.ID.Time)}
	} else {
		header = []any{[]any{int64(sid), int64(p.ID.Time)}}
	}
	if p.Meta != nil {
		header = append(header, p.Meta)
	}
	out := []any{header}
	for i := range p.Ops {
		out = append(out, compactRow(sid, &p.Ops[i]))
	}
	return out
}

func compactRow(sid uint64, op *Op) []any {
	code := int64(op.Code)
	switch op.Code {
	case OpNewCon:
		if op.IsRef {
			return []any{code, compactTs(sid, op.Ref), true}
		}
		if op.Value == protocol.Undefined {
			return []any{code}
		}
		return []any{code, op.Value}
	case OpInsVal:
		return []any{code, compactTs(sid, op.Obj), compactTs(sid, op.Val)}
	case OpInsObj:
		tuples := make([]any, len(op.Keys))
		for i, e := range op.Keys {
			tuples[i] = []any{e.Key, compactTs(sid, e.Val)}
		}
		return []any{code, compactTs(sid, op.Obj), tuples}
	case OpInsVec:
		tuples := make([]any, len(op.Slots))
		for i, e := range op.Slots {
			tuples[i] = []any{int64(e.Index), compactTs(sid, e.Val)}
		}
		return []any{code, compactTs(sid, op.Obj), tuples}
	case OpInsStr:
		return []any{code, compactTs(sid, op.Obj), compactTs(sid, op.Ref), op.Text}
	case OpInsBin:
		return []any{code, compactTs(sid, op.Obj), compactTs(sid, op.Ref), base64.StdEncoding.EncodeToString(op.Data)}
	case OpInsArr:
		vals := make([]any, len(op.Vals))
		for i, v := range op.Vals {
			vals[i] = compactTs(sid, v)
		}
		return []any{code, compactTs(sid, op.Obj), compactTs(sid, op.Ref), vals}
	case OpUpdArr:
		return []any{code, compactTs(sid, op.Obj), compactTs(sid, op.Ref), compactTs(sid, op.Val)}
	case OpDel:
		spans := make([]any, len(op.Spans))
		for i, s := range op.Spans {
			spans[i] = compactTss(sid, s)
		}
		return []any{code, compactTs(sid, op.Obj), spans}
	case OpNop:
		if op.Len > 1 {
			return []any{code, int64(op.Len)}
		}
	}
	return []any{code}
}

func compactErr(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", joy_errors.ErrInvalidPatch, ErrBadCompact, fmt.Sprintf(format, args...))
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case int64:
		return uint64(x), x >= 0
	case uint64:
		return x, true
	case float64:
		return uint64(x), x >= 0 && x == float64(uint64(x))
	}
	return 0, false
}

func parseTs(sid uint64, v any) (clock.Ts, error) {
	if t, ok := asUint(v); ok {
		return clock.Ts{Sid: sid, Time: t}, nil
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return clock.Ts{}, compactErr("bad timestamp %v", v)
	}
	s, ok1 := asUint(arr[0])
	t, ok2 := asUint(arr[1])
	if !ok1 || !ok2 {
		return clock.Ts{}, compactErr("bad timestamp %v", v)
	}
	return clock.Ts{Sid: s, Time: t}, nil
}

func parseTss(sid uint64, v any) (clock.Tss, error) {
	arr, ok := v.([]any)
	if !ok || (len(arr) != 2 && len(arr) != 3) {
		return clock.Tss{}, compactErr("bad span %v", v)
	}
	nums := make([]uint64, len(arr))
	for i, e := range arr {
		if nums[i], ok = asUint(e); !ok {
			return clock.Tss{}, compactErr("bad span %v", v)
		}
	}
	if len(nums) == 2 {
		return clock.Tss{Sid: sid, Time: nums[0], Span: nums[1]}, nil
	}
	return clock.Tss{Sid: nums[0], Time: nums[1], Span: nums[2]}, nil
}

type rowReader struct {
	row []any
	sid uint64
	err error
}

func (r *rowReader) at(i int) any {
	if r.err != nil {
		return nil
	}
	if i >= len(r.row) {
		r.err = compactErr("row too short: %v", r.row)
		return nil
	}
	return r.row[i]
}

func (r *rowReader) ts(i int) (ts clock.Ts) {
	v := r.at(i)
	if r.err == nil {
		ts, r.err = parseTs(r.sid, v)
	}
	return
}

func (r *rowReader) list(i int) []any {
	v := r.at(i)
	if r.err != nil {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		r.err = compactErr("expected list at %d: %v", i, r.row)
	}
	return l
}

func (r *rowReader) str(i int) string {
	v := r.at(i)
	if r.err != nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.err = compactErr("expected string at %d: %v", i, r.row)
	}
	return s
}

// DecodeCompact parses the output of EncodeCompact, also after a JSON
// round trip through protocol.ParseJSON.
func DecodeCompact(v any) (*Patch, error) {
	rows, ok := v.([]any)
	if !ok || len(rows) == 0 {
		return nil, compactErr("missing header")
	}
	header, ok := rows[0].([]any)
	if !ok || len(header) == 0 {
		return nil, compactErr("bad header")
	}
	p := &Patch{}
	if t, ok := asUint(header[0]); ok {
		p.ID = clock.Ts{Sid: clock.SidServer, Time: t}
	} else {
		id, err := parseTs(0, header[0])
		if err != nil {
			return nil, err
		}
		p.ID = id
	}
	if len(header) > 1 {
		p.Meta = header[1]
	}
	cur := p.ID
	for _, raw := range rows[1:] {
		row, ok := raw.([]any)
		if !ok || len(row) == 0 {
			return nil, compactErr("bad row %v", raw)
		}
		code, ok := asUint(row[0])
		if !ok || code > 255 || !OpCode(code).Valid() {
			return nil, compactErr("unknown opcode %v", row[0])
		}
		op, err := parseRow(p.ID.Sid, OpCode(code), row)
		if err != nil {
			return nil, err
		}
		op.ID = cur
		cur = cur.Tick(op.Span())
		p.Ops = append(p.Ops, op)
	}
	return p, nil
}

func parseRow(sid uint64, code OpCode, row []any) (Op, error) {
	op := Op{Code: code}
	r := &rowReader{row: row, sid: sid}
	switch code {
	case OpNewCon:
		switch {
		case len(row) == 1:
			op.Value = protocol.Undefined
		case len(row) > 2 && row[2] == true:
			op.IsRef = true
			op.Ref = r.ts(1)
		default:
			op.Value = row[1]
		}
	case OpInsVal:
		op.Obj, op.Val = r.ts(1), r.ts(2)
	case OpInsObj:
		op.Obj = r.ts(1)
		for _, t := range r.list(2) {
			pair, ok := t.([]any)
			if !ok || len(pair) != 2 {
				return op, compactErr("bad ins_obj tuple %v", t)
			}
			key, ok := pair[0].(string)
			if !ok {
				return op, compactErr("bad ins_obj key %v", pair[0])
			}
			val, err := parseTs(sid, pair[1])
			if err != nil {
				return op, err
			}
			op.Keys = append(op.Keys, ObjEntry{Key: key, Val: val})
		}
	case OpInsVec:
		op.Obj = r.ts(1)
		for _, t := range r.list(2) {
			pair, ok := t.([]any)
			if !ok || len(pair) != 2 {
				return op, compactErr("bad ins_vec tuple %v", t)
			}
			idx, ok := asUint(pair[0])
			if !ok || idx > 255 {
				return op, compactErr("bad ins_vec index %v", pair[0])
			}
			val, err := parseTs(sid, pair[1])
			if err != nil {
				return op, err
			}
			op.Slots = append(op.Slots, VecEntry{Index: uint8(idx), Val: val})
		}
	case OpInsStr:
		op.Obj, op.Ref, op.Text = r.ts(1), r.ts(2), r.str(3)
	case OpInsBin:
		op.Obj, op.Ref = r.ts(1), r.ts(2)
		if s := r.str(3); r.err == nil {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return op, compactErr("bad base64: %v", err)
			}
			op.Data = data
		}
	case OpInsArr:
		op.Obj, op.Ref = r.ts(1), r.ts(2)
		for _, e := range r.list(3) {
			val, err := parseTs(sid, e)
			if err != nil {
				return op, err
			}
			op.Vals = append(op.Vals, val)
		}
	case OpUpdArr:
		op.Obj, op.Ref, op.Val = r.ts(1), r.ts(2), r.ts(3)
	case OpDel:
		op.Obj = r.ts(1)
		for _, e := range r.list(2) {
			s, err := parseTss(sid, e)
			if err != nil {
				return op, err
			}
			op.Spans = append(op.Spans, s)
		}
	case OpNop:
		op.Len = 1
		if len(row) > 1 {
			n, ok := asUint(row[1])
			if !ok {
				return op, compactErr("bad nop length %v", row[1])
			}
			op.Len = n
		}
	}
	return op, r.err
}
