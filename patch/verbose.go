package patch

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

var ErrBadVerbose = errors.New("patch: invalid verbose form")

var opCodes = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opNames))
	for code, name := range opNames {
		m[name] = code
	}
	return m
}()

func verboseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", joy_errors.ErrInvalidPatch, ErrBadVerbose, fmt.Sprintf(format, args...))
}

// Server session stamps are bare numbers, all others are [sid, time].
func verboseTs(ts clock.Ts) any {
	if ts.Sid == clock.SidServer {
		return int64(ts.Time)
	}
	return []any{int64(ts.Sid), int64(ts.Time)}
}

/*
	EncodeVerbose renders the patch as a JSON object: {"id": [sid, time],
	"ops": [...]} where every op is an object keyed by field name and
	tagged with "op". Empty patches have no id and cannot be encoded.
*/
func EncodeVerbose(p *Patch) (map[string]any, error) {
	if p.Empty() {
		return nil, verboseErr("empty patch")
	}
	ops := make([]any, len(p.Ops))
	for i := range p.Ops {
		ops[i] = verboseOp(&p.Ops[i])
	}
	out := map[string]any{
		"id":  []any{int64(p.ID.Sid), int64(p.ID.Time)},
		"ops": ops,
	}
	if p.Meta != nil {
		out["meta"] = p.Meta
	}
	return out, nil
}

func verboseOp(op *Op) map[string]any {
	row := map[string]any{"op": op.Code.String()}
	switch op.Code {
	case OpNewCon:
		if op.IsRef {
			row["timestamp"] = true
			row["value"] = verboseTs(op.Ref)
		} else if op.Value != protocol.Undefined {
			row["value"] = op.Value
		}
	case OpInsVal:
		row["obj"] = verboseTs(op.Obj)
		row["value"] = verboseTs(op.Val)
	case OpInsObj:
		tuples := make([]any, len(op.Keys))
		for i, e := range op.Keys {
			tuples[i] = []any{e.Key, verboseTs(e.Val)}
		}
		row["obj"] = verboseTs(op.Obj)
		row["value"] = tuples
	case OpInsVec:
		tuples := make([]any, len(op.Slots))
		for i, e := range op.Slots {
			tuples[i] = []any{int64(e.Index), verboseTs(e.Val)}
		}
		row["obj"] = verboseTs(op.Obj)
		row["value"] = tuples
	case OpInsStr:
		row["obj"] = verboseTs(op.Obj)
		row["after"] = verboseTs(op.Ref)
		row["value"] = op.Text
	case OpInsBin:
		row["obj"] = verboseTs(op.Obj)
		row["after"] = verboseTs(op.Ref)
		row["value"] = base64.StdEncoding.EncodeToString(op.Data)
	case OpInsArr:
		vals := make([]any, len(op.Vals))
		for i, v := range op.Vals {
			vals[i] = verboseTs(v)
		}
		row["obj"] = verboseTs(op.Obj)
		row["after"] = verboseTs(op.Ref)
		row["values"] = vals
	case OpUpdArr:
		row["obj"] = verboseTs(op.Obj)
		row["ref"] = verboseTs(op.Ref)
		row["value"] = verboseTs(op.Val)
	case OpDel:
		spans := make([]any, len(op.Spans))
		for i, s := range op.Spans {
			spans[i] = []any{int64(s.Sid), int64(s.Time), int64(s.Span)}
		}
		row["obj"] = verboseTs(op.Obj)
		row["what"] = spans
	case OpNop:
		if op.Len > 1 {
			row["len"] = int64(op.Len)
		}
	}
	return row
}

type fieldReader struct {
	row map[string]any
	err error
}

func (r *fieldReader) get(key string) any {
	if r.err != nil {
		return nil
	}
	v, ok := r.row[key]
	if !ok {
		r.err = verboseErr("%s: missing %q", r.row["op"], key)
	}
	return v
}

func (r *fieldReader) ts(key string) clock.Ts {
	v := r.get(key)
	if r.err != nil {
		return clock.Ts{}
	}
	if t, ok := asUint(v); ok {
		return clock.Ts{Sid: clock.SidServer, Time: t}
	}
	arr, ok := v.([]any)
	if ok && len(arr) == 2 {
		s, ok1 := asUint(arr[0])
		t, ok2 := asUint(arr[1])
		if ok1 && ok2 {
			return clock.Ts{Sid: s, Time: t}
		}
	}
	r.err = verboseErr("%s: bad timestamp %v", r.row["op"], v)
	return clock.Ts{}
}

// after falls back to the node itself, the usual target of a first insert.
func (r *fieldReader) after() clock.Ts {
	if _, ok := r.row["after"]; ok {
		return r.ts("after")
	}
	return r.ts("obj")
}

func (r *fieldReader) list(key string) []any {
	v := r.get(key)
	if r.err != nil {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		r.err = verboseErr("%s: %q is not a list", r.row["op"], key)
	}
	return l
}

func (r *fieldReader) str(key string) string {
	v := r.get(key)
	if r.err != nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.err = verboseErr("%s: %q is not a string", r.row["op"], key)
	}
	return s
}

// tuple reads a [head, ts] pair of ins_obj and ins_vec.
func (r *fieldReader) tuple(v any) (any, clock.Ts) {
	pair, ok := v.([]any)
	if r.err != nil || !ok || len(pair) != 2 {
		if r.err == nil {
			r.err = verboseErr("%s: bad tuple %v", r.row["op"], v)
		}
		return nil, clock.Ts{}
	}
	sub := &fieldReader{row: map[string]any{"op": r.row["op"], "v": pair[1]}}
	ts := sub.ts("v")
	r.err = sub.err
	return pair[0], ts
}

// DecodeVerbose parses the output of EncodeVerbose, also after a JSON
// round trip through protocol.ParseJSON. Op ids run on from the patch id.
func DecodeVerbose(v any) (*Patch, error) {
	root, ok := v.(map[string]any)
	if !ok {
		return nil, verboseErr("not an object")
	}
	id, ok := root["id"].([]any)
	if !ok || len(id) != 2 {
		return nil, verboseErr("bad id %v", root["id"])
	}
	s, ok1 := asUint(id[0])
	t, ok2 := asUint(id[1])
	if !ok1 || !ok2 {
		return nil, verboseErr("bad id %v", root["id"])
	}
	rows, ok := root["ops"].([]any)
	if !ok {
		return nil, verboseErr("missing ops")
	}
	p := &Patch{ID: clock.Ts{Sid: s, Time: t}, Meta: root["meta"]}
	cur := p.ID
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			return nil, verboseErr("bad op %v", raw)
		}
		name, _ := row["op"].(string)
		code, ok := opCodes[name]
		if !ok {
			return nil, verboseErr("unknown op %q", name)
		}
		op, err := parseVerbose(code, row)
		if err != nil {
			return nil, err
		}
		op.ID = cur
		cur = cur.Tick(op.Span())
		p.Ops = append(p.Ops, op)
	}
	return p, nil
}

func parseVerbose(code OpCode, row map[string]any) (Op, error) {
	op := Op{Code: code}
	r := &fieldReader{row: row}
	switch code {
	case OpNewCon:
		val, has := row["value"]
		switch {
		case row["timestamp"] == true:
			op.IsRef = true
			op.Ref = r.ts("value")
		case has:
			op.Value = val
		default:
			op.Value = protocol.Undefined
		}
	case OpInsVal:
		op.Obj, op.Val = r.ts("obj"), r.ts("value")
	case OpInsObj:
		op.Obj = r.ts("obj")
		for _, e := range r.list("value") {
			head, val := r.tuple(e)
			key, ok := head.(string)
			if r.err == nil && !ok {
				r.err = verboseErr("ins_obj: bad key %v", head)
			}
			if r.err != nil {
				break
			}
			op.Keys = append(op.Keys, ObjEntry{Key: key, Val: val})
		}
	case OpInsVec:
		op.Obj = r.ts("obj")
		for _, e := range r.list("value") {
			head, val := r.tuple(e)
			idx, ok := asUint(head)
			if r.err == nil && (!ok || idx > 255) {
				r.err = verboseErr("ins_vec: bad index %v", head)
			}
			if r.err != nil {
				break
			}
			op.Slots = append(op.Slots, VecEntry{Index: uint8(idx), Val: val})
		}
	case OpInsStr:
		op.Obj, op.Ref, op.Text = r.ts("obj"), r.after(), r.str("value")
	case OpInsBin:
		op.Obj, op.Ref = r.ts("obj"), r.after()
		if s := r.str("value"); r.err == nil {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return op, verboseErr("ins_bin: bad base64: %v", err)
			}
			op.Data = data
		}
	case OpInsArr:
		op.Obj, op.Ref = r.ts("obj"), r.after()
		for _, e := range r.list("values") {
			sub := &fieldReader{row: map[string]any{"op": code.String(), "v": e}}
			op.Vals = append(op.Vals, sub.ts("v"))
			if sub.err != nil {
				return op, sub.err
			}
		}
	case OpUpdArr:
		op.Obj, op.Ref, op.Val = r.ts("obj"), r.ts("ref"), r.ts("value")
	case OpDel:
		op.Obj = r.ts("obj")
		for _, e := range r.list("what") {
			arr, ok := e.([]any)
			if !ok || len(arr) != 3 {
				return op, verboseErr("del: bad span %v", e)
			}
			var nums [3]uint64
			for i := range arr {
				if nums[i], ok = asUint(arr[i]); !ok {
					return op, verboseErr("del: bad span %v", e)
				}
			}
			op.Spans = append(op.Spans, clock.Tss{Sid: nums[0], Time: nums[1], Span: nums[2]})
		}
	case OpNop:
		op.Len = 1
		if v, ok := row["len"]; ok {
			n, ok := asUint(v)
			if !ok {
				return op, verboseErr("nop: bad len %v", v)
			}
			op.Len = n
		}
	}
	return op, r.err
}
