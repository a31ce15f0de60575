package patch

import (
	"testing"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sid = uint64(70000)

func ts(t uint64) clock.Ts { return clock.Ts{Sid: sid, Time: t} }

// samplePatch has every op kind, one foreign reference and a
// multi-byte string.
func samplePatch() *Patch {
	b := NewBuilder(clock.NewLogicalClock(sid, 10))
	obj := b.Obj()
	con := b.Con(int64(42))
	b.Con(protocol.Undefined)
	b.ConRef(clock.Ts{Sid: 90000, Time: 3})
	reg := b.Val()
	b.SetVal(reg, con)
	b.InsObj(obj, []ObjEntry{{"a", con}, {"b", reg}})
	vec := b.Vec()
	b.InsVec(vec, []VecEntry{{0, con}, {3, reg}})
	str := b.Str()
	b.InsStr(str, str, "héllo wörld")
	bin := b.Bin()
	b.InsBin(bin, bin, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	arr := b.Arr()
	b.InsArr(arr, arr, []clock.Ts{con, reg})
	b.UpdArr(arr, ts(arr.Time+1), con)
	b.Del(str, []clock.Tss{{Sid: sid, Time: str.Time + 2, Span: 3}, {Sid: 90000, Time: 1, Span: 1}})
	b.Nop(3)
	b.Root(obj)
	return b.Flush()
}

func TestEncode_Header(t *testing.T) {
	p := &Patch{ID: ts(1), Ops: []Op{{Code: OpNewObj, ID: ts(1)}}}
	data, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf0, 0xa2, 0x04, 0x01, 0xf7, 0x01, 0x10}, data)
}

func TestEncode_InsStrByteLength(t *testing.T) {
	enc := func(text string) []byte {
		p := &Patch{ID: ts(5), Ops: []Op{{Code: OpInsStr, ID: ts(5), Obj: ts(1), Ref: ts(1), Text: text}}}
		data, err := Encode(p)
		require.NoError(t, err)
		back, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, text, back.Ops[0].Text)
		return data[6:]
	}
	assert.Equal(t, byte(0x62), enc("é")[0])
	assert.Equal(t, byte(0x67), enc("abcdefg")[0])
	assert.Equal(t, []byte{0x60, 0x08}, enc("abcdefgh")[:2])
	assert.Equal(t, []byte{0x60, 0x0a}, enc("ééééé")[:2])
	assert.Equal(t, []byte{0x60, 0x00}, enc("")[:2])
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := samplePatch()
	data, err := Encode(p)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	again, err := Encode(back)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, len(p.Ops), len(back.Ops))
	for i := range p.Ops {
		assert.Equal(t, p.Ops[i].ID, back.Ops[i].ID, "op %d", i)
		assert.Equal(t, p.Ops[i].Code, back.Ops[i].Code, "op %d", i)
	}
	assert.Equal(t, p.NextTime(), back.NextTime())

	withMeta := &Patch{ID: ts(1), Meta: map[string]any{"who": "me"}}
	data, err = Encode(withMeta)
	require.NoError(t, err)
	back, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"who": "me"}, back.Meta)

	data = append(data, 0xde, 0xad)
	_, err = Decode(data)
	assert.NoError(t, err)
}

func TestDecode_Errors(t *testing.T) {
	head := []byte{0xf0, 0xa2, 0x04, 0x01, 0xf7, 0x01}
	bad := map[string][]byte{
		"empty":          {},
		"truncated head": {0xf0, 0xa2},
		"unknown opcode": append(append([]byte{}, head...), 7<<3),
		"bad cbor":       append(append([]byte{}, head...), 0x00, 0x1c),
		"short bin":      append(append([]byte{}, head...), 13<<3|5, 0x01, 0x01, 0xaa, 0xbb),
		"missing ops":    {0xf0, 0xa2, 0x04, 0x01, 0xf7, 0x03, 0x10},
		"bad utf8":       append(append([]byte{}, head...), 12<<3|1, 0x01, 0x01, 0xff),
	}
	for name, data := range bad {
		_, err := Decode(data)
		assert.ErrorIs(t, err, joy_errors.ErrInvalidPatch, name)
	}

	p, err := DecodeCompat([]byte{0x01})
	assert.NoError(t, err)
	assert.True(t, p.Empty())
	_, err = DecodeCompat([]byte(`{"x":1}`))
	assert.ErrorIs(t, err, joy_errors.ErrInvalidPatch)
}

func TestOp_Span(t *testing.T) {
	assert.Equal(t, uint64(1), (&Op{Code: OpNewStr}).Span())
	assert.Equal(t, uint64(1), (&Op{Code: OpUpdArr}).Span())
	assert.Equal(t, uint64(2), (&Op{Code: OpInsObj, Keys: make([]ObjEntry, 2)}).Span())
	assert.Equal(t, uint64(1), (&Op{Code: OpInsObj}).Span())
	assert.Equal(t, uint64(3), (&Op{Code: OpInsStr, Text: "aöb"}).Span())
	assert.Equal(t, uint64(4), (&Op{Code: OpInsBin, Data: make([]byte, 4)}).Span())
	assert.Equal(t, uint64(7), (&Op{Code: OpDel, Spans: []clock.Tss{{Span: 3}, {Span: 4}}}).Span())
	assert.Equal(t, uint64(9), (&Op{Code: OpNop, Len: 9}).Span())
	assert.Equal(t, "ins_arr", OpInsArr.String())
	assert.False(t, OpCode(7).Valid())
}

func TestCompact_RoundTrip(t *testing.T) {
	p := samplePatch()
	bin, err := Encode(p)
	require.NoError(t, err)

	compact := EncodeCompact(p)
	parsed, err := protocol.ParseJSON([]byte(protocol.FormatJSON(compact)))
	require.NoError(t, err)
	back, err := DecodeCompact(parsed)
	require.NoError(t, err)
	again, err := Encode(back)
	require.NoError(t, err)
	assert.Equal(t, bin, again)

	header := compact[0].([]any)
	assert.Equal(t, []any{int64(sid), int64(10)}, header[0])
	assert.Equal(t, []any{int64(OpNewCon)}, compact[3])
	assert.Equal(t, []any{int64(OpNewCon), []any{int64(90000), int64(3)}, true}, compact[4])

	server := &Patch{ID: clock.Ts{Sid: 1, Time: 5}, Ops: []Op{{Code: OpNop, ID: clock.Ts{Sid: 1, Time: 5}, Len: 2}}}
	compact = EncodeCompact(server)
	assert.Equal(t, []any{int64(5)}, compact[0])
	assert.Equal(t, []any{int64(OpNop), int64(2)}, compact[1])
	back, err = DecodeCompact(compact)
	require.NoError(t, err)
	assert.Equal(t, server.ID, back.ID)

	_, err = DecodeCompact([]any{})
	assert.ErrorIs(t, err, ErrBadCompact)
	_, err = DecodeCompact([]any{[]any{int64(1)}, []any{int64(8)}})
	assert.ErrorIs(t, err, joy_errors.ErrInvalidPatch)
	_, err = DecodeCompact([]any{[]any{int64(1)}, []any{int64(13), int64(1), int64(1), "***"}})
	assert.ErrorIs(t, err, ErrBadCompact)
}

func TestLog(t *testing.T) {
	a := samplePatch()
	b := &Patch{ID: ts(100), Ops: []Op{{Code: OpNop, ID: ts(100), Len: 1}}}
	log, err := SerializeLog([]*Patch{a, b})
	require.NoError(t, err)
	assert.Equal(t, byte(LogVersion), log[0])

	patches, err := DeserializeLog(log)
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, ts(100), patches[1].ID)

	c := &Patch{ID: ts(200), Ops: []Op{{Code: OpNewObj, ID: ts(200)}}}
	log, err = AppendLog(log, c)
	require.NoError(t, err)
	patches, err = DeserializeLog(log)
	require.NoError(t, err)
	assert.Len(t, patches, 3)

	fresh, err := AppendLog(nil, c)
	require.NoError(t, err)
	assert.Equal(t, byte(LogVersion), fresh[0])

	empty, err := SerializeLog(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	none, err := DeserializeLog(nil)
	assert.NoError(t, err)
	assert.Empty(t, none)

	for _, data := range [][]byte{
		{2},
		{1, 0, 0},
		{1, 0xff, 0xff, 0xff, 0xff},
		{1, 0, 0, 0, 9, 1},
	} {
		_, err := DeserializeLog(data)
		assert.ErrorIs(t, err, joy_errors.ErrInvalidPatchLog)
	}
}

func TestBuilder_JSON(t *testing.T) {
	c := clock.NewLogicalClock(sid, 1)
	b := NewBuilder(c)
	root := b.JSON(map[string]any{"b": "xy", "a": []any{int64(1), map[string]any{}}, "c": []byte{7}})
	b.Root(root)
	p := b.Flush()
	assert.Equal(t, ts(1), p.ID)
	assert.Equal(t, ts(1), root)
	assert.Equal(t, c.Time, p.NextTime())

	var codes []OpCode
	next := p.ID
	for _, op := range p.Ops {
		assert.Equal(t, next, op.ID)
		next = next.Tick(op.Span())
		codes = append(codes, op.Code)
	}
	assert.Equal(t, []OpCode{
		OpNewObj,
		OpNewArr, OpNewVal, OpNewCon, OpInsVal, OpNewObj, OpInsArr,
		OpNewStr, OpInsStr,
		OpNewBin, OpInsBin,
		OpInsObj, OpInsVal,
	}, codes)
	ins := p.Ops[11]
	assert.Equal(t, []string{"a", "b", "c"}, []string{ins.Keys[0].Key, ins.Keys[1].Key, ins.Keys[2].Key})
	assert.True(t, b.Patch().Empty())
}

func TestBuilder_Pad(t *testing.T) {
	c := clock.NewLogicalClock(sid, 1)
	b := NewBuilder(c)
	b.Obj()
	c.Observe(clock.Ts{Sid: 90000, Time: 10}, 1)
	b.Str()
	p := b.Flush()
	require.Len(t, p.Ops, 3)
	assert.Equal(t, OpNop, p.Ops[1].Code)
	assert.Equal(t, uint64(9), p.Ops[1].Len)
	assert.Equal(t, ts(11), p.Ops[2].ID)
}

func TestRebase(t *testing.T) {
	p := samplePatch()
	r := p.Rebase(1000)
	assert.Equal(t, ts(1000), r.ID)
	assert.Equal(t, p.Span(), r.Span())
	root := r.Ops[len(r.Ops)-1]
	assert.Equal(t, OpInsVal, root.Code)
	assert.Equal(t, ts(1000), root.Val)
	assert.Equal(t, clock.Origin, root.Obj)
	ref := r.Ops[3]
	assert.Equal(t, clock.Ts{Sid: 90000, Time: 3}, ref.Ref)
}

func TestCombine(t *testing.T) {
	a := &Patch{ID: ts(1), Ops: []Op{{Code: OpNewObj, ID: ts(1)}}}
	b := &Patch{ID: ts(5), Ops: []Op{{Code: OpNewStr, ID: ts(5)}}}
	c, err := Combine([]*Patch{a, {}, b})
	require.NoError(t, err)
	require.Len(t, c.Ops, 3)
	assert.Equal(t, OpNop, c.Ops[1].Code)
	assert.Equal(t, uint64(3), c.Ops[1].Len)
	assert.Equal(t, uint64(6), c.NextTime())

	_, err = Combine([]*Patch{b, a})
	assert.ErrorIs(t, err, ErrTimestampConflict)
	other := &Patch{ID: clock.Ts{Sid: 90000, Time: 9}, Ops: []Op{{Code: OpNop, Len: 1}}}
	_, err = Combine([]*Patch{a, other})
	assert.ErrorIs(t, err, ErrSidMismatch)
	empty, err := Combine(nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestCompact_MergesTypedRuns(t *testing.T) {
	b := NewBuilder(clock.NewLogicalClock(sid, 10))
	str := b.Str()
	b.InsStr(str, str, "ab")
	b.InsStr(str, ts(12), "c")
	b.InsStr(str, ts(13), "de")
	b.InsStr(str, str, "x")
	p := b.Flush()
	next := p.NextTime()

	Compact(p)
	require.Len(t, p.Ops, 3)
	assert.Equal(t, "abcde", p.Ops[1].Text)
	assert.Equal(t, ts(11), p.Ops[1].ID)
	assert.Equal(t, "x", p.Ops[2].Text)
	assert.Equal(t, ts(16), p.Ops[2].ID)
	assert.Equal(t, next, p.NextTime())

	bin, err := Encode(p)
	require.NoError(t, err)
	back, err := Decode(bin)
	require.NoError(t, err)
	assert.Equal(t, ts(16), back.Ops[2].ID)

	other := NewBuilder(clock.NewLogicalClock(sid, 1))
	s1, s2 := other.Str(), other.Str()
	other.InsStr(s1, s1, "a")
	other.InsStr(s2, ts(3), "b")
	p = Compact(other.Flush())
	assert.Len(t, p.Ops, 4)
}

func TestVerbose_RoundTrip(t *testing.T) {
	p := samplePatch()
	bin, err := Encode(p)
	require.NoError(t, err)

	verbose, err := EncodeVerbose(p)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(sid), int64(10)}, verbose["id"])
	ops := verbose["ops"].([]any)
	assert.Equal(t, map[string]any{"op": "new_con"}, ops[2])
	assert.Equal(t, map[string]any{
		"op":        "new_con",
		"timestamp": true,
		"value":     []any{int64(90000), int64(3)},
	}, ops[3])

	parsed, err := protocol.ParseJSON([]byte(protocol.FormatJSON(verbose)))
	require.NoError(t, err)
	back, err := DecodeVerbose(parsed)
	require.NoError(t, err)
	again, err := Encode(back)
	require.NoError(t, err)
	assert.Equal(t, bin, again)
}

func TestVerbose_ServerAndDefaults(t *testing.T) {
	p, err := DecodeVerbose(map[string]any{
		"id": []any{int64(1), int64(5)},
		"ops": []any{
			map[string]any{"op": "nop", "len": int64(2)},
			map[string]any{"op": "ins_str", "obj": int64(3), "value": "hi"},
		},
	})
	require.NoError(t, err)
	require.Len(t, p.Ops, 2)
	assert.Equal(t, uint64(2), p.Ops[0].Len)
	assert.Equal(t, clock.Ts{Sid: 1, Time: 7}, p.Ops[1].ID)
	assert.Equal(t, clock.Ts{Sid: 1, Time: 3}, p.Ops[1].Obj)
	assert.Equal(t, p.Ops[1].Obj, p.Ops[1].Ref)

	verbose, err := EncodeVerbose(p)
	require.NoError(t, err)
	row := verbose["ops"].([]any)[1].(map[string]any)
	assert.Equal(t, int64(3), row["after"])

	_, err = EncodeVerbose(&Patch{})
	assert.ErrorIs(t, err, ErrBadVerbose)
	_, err = DecodeVerbose(map[string]any{"id": []any{int64(1), int64(5)}, "ops": []any{map[string]any{"op": "jump"}}})
	assert.ErrorIs(t, err, joy_errors.ErrInvalidPatch)
	_, err = DecodeVerbose(map[string]any{"id": []any{int64(1), int64(5)}, "ops": []any{map[string]any{"op": "ins_val", "obj": int64(1)}}})
	assert.ErrorIs(t, err, ErrBadVerbose)
	_, err = DecodeVerbose([]any{})
	assert.ErrorIs(t, err, ErrBadVerbose)
}

func TestSchema(t *testing.T) {
	s := SchemaObj{
		Req: []SchemaField{{Key: "name", Node: SchemaStr("ab")}},
		Opt: []SchemaField{{Key: "n", Node: SchemaCon{Value: int64(1)}}},
	}
	p := SchemaPatch(s, clock.NewLogicalClock(sid, 1))
	codes := make([]OpCode, len(p.Ops))
	for i := range p.Ops {
		codes[i] = p.Ops[i].Code
	}
	assert.Equal(t, []OpCode{OpNewObj, OpNewStr, OpInsStr, OpNewCon, OpInsObj, OpInsVal}, codes)
	assert.Equal(t, ts(2), p.Ops[2].Ref)
	assert.Equal(t, []ObjEntry{{"name", ts(2)}, {"n", ts(5)}}, p.Ops[4].Keys)
	assert.Equal(t, clock.Origin, p.Ops[5].Obj)

	doc := map[string]any{"a": int64(1), "l": []any{int64(2), "x"}, "s": "hi"}
	b := NewBuilder(clock.NewLogicalClock(sid, 1))
	b.Root(b.JSON(doc))
	want, err := Encode(b.Flush())
	require.NoError(t, err)
	got, err := Encode(SchemaPatch(SchemaJSON(doc), clock.NewLogicalClock(sid, 1)))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	p = SchemaPatch(SchemaExt{ID: 7, Data: SchemaStr("x")}, clock.NewLogicalClock(sid, 1))
	assert.Equal(t, []any{int64(7), int64(sid % 256), int64(1)}, p.Ops[1].Value)
	assert.Equal(t, []VecEntry{{0, ts(2)}, {1, ts(3)}}, p.Ops[4].Slots)

	p = SchemaPatch(SchemaVec{SchemaCon{Value: int64(1)}, nil, SchemaStr("")}, clock.NewLogicalClock(sid, 1))
	assert.Equal(t, []VecEntry{{0, ts(2)}, {2, ts(3)}}, p.Ops[3].Slots)
}
