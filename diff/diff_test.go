package diff

import (
	"math"
	"testing"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sid = uint64(70000)

func base(t *testing.T, v any) *model.Model {
	m := model.New(sid)
	b := patch.NewBuilder(m.Clock(sid))
	b.Root(b.JSON(v))
	require.NoError(t, m.Apply(b.Flush()))
	return m
}

func parse(t *testing.T, js string) any {
	v, err := protocol.ParseJSON([]byte(js))
	require.NoError(t, err)
	return v
}

func codes(p *patch.Patch) []patch.OpCode {
	out := make([]patch.OpCode, len(p.Ops))
	for i, op := range p.Ops {
		out[i] = op.Code
	}
	return out
}

// check diffs m to target, applies the patch to m and returns the patch.
func check(t *testing.T, m *model.Model, target any, layer Layer) *patch.Patch {
	p, got, err := Diff(m, target, m.Sid())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, layer, got)
	assert.Equal(t, m.Time()+1, p.ID.Time)
	require.NoError(t, m.Apply(p))
	assert.True(t, protocol.Equal(target, m.View()), protocol.FormatJSON(m.View()))
	return p
}

func TestDiff_Noop(t *testing.T) {
	m, err := model.Decode([]byte{0x00, 0x00, 0x00, 0x02, 0x11, 0x40, 0x01, 0xb4, 0xba, 0x04, 0x02})
	require.NoError(t, err)
	p, layer, err := Diff(m, map[string]any{}, 73012)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, LayerNoop, layer)
}

func TestDiff_BootstrapEmptyObject(t *testing.T) {
	m, err := model.Decode([]byte{0x00, 0x00, 0x00, 0x02, 0x11, 0x40, 0x01, 0xb4, 0xba, 0x04, 0x02})
	require.NoError(t, err)
	p := check(t, m, parse(t, `{"a":1,"b":"x"}`), LayerBootstrap)
	assert.Equal(t, uint64(3), p.ID.Time)
	assert.Equal(t, []patch.OpCode{patch.OpNewCon, patch.OpNewStr, patch.OpInsStr, patch.OpInsObj}, codes(p))
	last := p.Ops[len(p.Ops)-1]
	assert.Equal(t, clock.Ts{Sid: 73012, Time: 1}, last.Obj)
	require.Len(t, last.Keys, 2)
	assert.Equal(t, "a", last.Keys[0].Key)
	assert.Equal(t, "b", last.Keys[1].Key)
}

func TestDiff_BootstrapNoRoot(t *testing.T) {
	m := model.New(sid)
	p := check(t, m, parse(t, `{"k":[1]}`), LayerBootstrap)
	assert.Equal(t, patch.OpNewObj, p.Ops[0].Code)
	assert.Equal(t, patch.OpInsVal, p.Ops[1].Code)
}

func TestDiff_ScalarRoot(t *testing.T) {
	m := base(t, parse(t, `{"a":1,"b":"x"}`))
	p := check(t, m, parse(t, `{"a":2,"b":"x","c":true}`), LayerScalarRoot)
	assert.Equal(t, []patch.OpCode{patch.OpNewCon, patch.OpNewCon, patch.OpInsObj}, codes(p))
}

func TestDiff_GenericRoot(t *testing.T) {
	m := base(t, parse(t, `{"a":1,"b":"x","c":[1]}`))
	p := check(t, m, parse(t, `{"b":"x","c":{"z":1}}`), LayerGenericRoot)
	last := p.Ops[len(p.Ops)-1]
	require.Equal(t, patch.OpInsObj, last.Code)
	assert.Equal(t, "a", last.Keys[0].Key)
	assert.Equal(t, "c", last.Keys[1].Key)
}

func TestDiff_NestedScalarUpdate(t *testing.T) {
	m := base(t, parse(t, `{"doc":{"a":1,"b":"x","c":true}}`))
	doc := m.View().(map[string]any)
	require.Contains(t, doc, "doc")
	n, err := m.Find([]any{"doc"})
	require.NoError(t, err)

	p := check(t, m, parse(t, `{"doc":{"a":2,"b":"x","d":null}}`), LayerNested)
	last := p.Ops[len(p.Ops)-1]
	require.Equal(t, patch.OpInsObj, last.Code)
	assert.Equal(t, n.ID(), last.Obj)
	keys := make([]string, len(last.Keys))
	for i, e := range last.Keys {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"c", "a", "d"}, keys)
	assert.Equal(t, protocol.Undefined, p.Ops[0].Value)
}

// Elements of an arr are val registers, so an element update is an
// ins_val on the register. The vec-backed form follows below.
func TestDiff_ArrayRegisterUpdate(t *testing.T) {
	m := base(t, parse(t, `{"v":[1,2]}`))
	p := check(t, m, parse(t, `{"v":[1,3]}`), LayerArray)
	assert.Equal(t, []patch.OpCode{patch.OpNewCon, patch.OpInsVal}, codes(p))
}

func TestDiff_ArrayInsertAndTombstone(t *testing.T) {
	m := base(t, parse(t, `{"a":[1,"x",2],"b":["q",9]}`))
	p := check(t, m, parse(t, `{"a":[1,"x","y",2],"b":[9]}`), LayerArray)
	assert.Contains(t, codes(p), patch.OpInsArr)
	assert.Contains(t, codes(p), patch.OpUpdArr)
	assert.NotContains(t, codes(p), patch.OpDel)
	for i, op := range p.Ops {
		if op.Code == patch.OpUpdArr {
			con := p.Ops[i-1]
			assert.Equal(t, patch.OpNewCon, con.Code)
			assert.Equal(t, protocol.Undefined, con.Value)
		}
	}
}

func TestDiff_Vec(t *testing.T) {
	m := model.New(sid)
	b := patch.NewBuilder(m.Clock(sid))
	obj := b.Obj()
	b.InsObj(obj, []patch.ObjEntry{{Key: "t", Val: b.Tuple([]any{int64(1), "a"})}})
	b.Root(obj)
	require.NoError(t, m.Apply(b.Flush()))
	require.Equal(t, parse(t, `{"t":[1,"a"]}`), m.View())

	p := check(t, m, parse(t, `{"t":[1,"a",true]}`), LayerArray)
	assert.Equal(t, []patch.OpCode{patch.OpNewCon, patch.OpInsVec}, codes(p))
}

func TestDiff_VecBackedArray(t *testing.T) {
	m := model.New(sid)
	b := patch.NewBuilder(m.Clock(sid))
	obj := b.Obj()
	b.InsObj(obj, []patch.ObjEntry{{Key: "v", Val: b.Tuple([]any{int64(1), int64(2)})}})
	b.Root(obj)
	require.NoError(t, m.Apply(b.Flush()))
	require.Equal(t, parse(t, `{"v":[1,2]}`), m.View())

	p := check(t, m, parse(t, `{"v":[1,3]}`), LayerArray)
	assert.Contains(t, codes(p), patch.OpInsVec)
	assert.NotContains(t, codes(p), patch.OpDel)
	for _, op := range p.Ops {
		if op.Code == patch.OpInsVec {
			require.Len(t, op.Slots, 1)
			assert.Equal(t, uint8(1), op.Slots[0].Index)
		}
	}
}

func TestDiff_Bin(t *testing.T) {
	m := base(t, map[string]any{"doc": map[string]any{"b": []byte{1, 2, 3}}})
	require.Equal(t, parse(t, `{"doc":{"b":{"0":1,"1":2,"2":3}}}`), m.View())
	p := check(t, m, parse(t, `{"doc":{"b":{"0":1,"1":4,"2":3}}}`), LayerBin)
	assert.Equal(t, []patch.OpCode{patch.OpInsBin, patch.OpDel}, codes(p))
}

func TestDiff_String(t *testing.T) {
	m := base(t, parse(t, `{"t":"hello","n":["ab"]}`))
	p := check(t, m, parse(t, `{"t":"help!","n":["ac"]}`), LayerString)
	assert.NotContains(t, codes(p), patch.OpNewStr)

	m = base(t, "abc")
	p = check(t, m, "abd", LayerString)
	assert.Equal(t, []patch.OpCode{patch.OpInsStr, patch.OpDel}, codes(p))
	assert.Equal(t, []clock.Tss{{Sid: sid, Time: 4, Span: 1}}, p.Ops[1].Spans)
}

func TestDiff_Replace(t *testing.T) {
	m := base(t, "abc")
	check(t, m, int64(5), LayerReplace)
	check(t, m, parse(t, `[1,{"a":null}]`), LayerReplace)
}

func TestDiff_ServerModel(t *testing.T) {
	m := model.NewServer(0)
	p := check(t, m, parse(t, `{"a":"b"}`), LayerBootstrap)
	assert.Equal(t, clock.SidServer, p.ID.Sid)

	_, _, err := Diff(m, map[string]any{}, sid)
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)
}

func TestDiff_Unsupported(t *testing.T) {
	m := base(t, map[string]any{})
	_, _, err := Diff(m, map[string]any{"x": 1}, 7)
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)
	_, _, err = Diff(m, math.NaN(), sid)
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)
	_, _, err = Diff(m, protocol.Undefined, sid)
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)

	opaque, err := model.Load([]byte{0, 0, 0, 9, 1, 2})
	require.NoError(t, err)
	_, _, err = Diff(opaque, map[string]any{}, sid)
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)
}

func TestDiff_RoundTrips(t *testing.T) {
	steps := []string{
		`{}`,
		`{"title":"draft","tags":[],"meta":{"v":1}}`,
		`{"title":"draft 2","tags":["a"],"meta":{"v":1}}`,
		`{"title":"draft 2","tags":["a","b",{"c":[1,2]}],"meta":{"v":2,"w":null}}`,
		`{"title":"final","tags":[{"c":[2]},"b"],"meta":{}}`,
		`{"title":"final","tags":[{"c":[2,3]},"b"],"meta":{}}`,
		`[1,2,3]`,
		`[3,2,1,0]`,
		`{"x":"y"}`,
		`null`,
		`{"back":true}`,
	}
	m := model.New(sid)
	for _, s := range steps {
		target := parse(t, s)
		p, _, err := Diff(m, target, sid)
		require.NoError(t, err, s)
		if p == nil {
			continue
		}
		data, err := patch.Encode(p)
		require.NoError(t, err)
		back, err := patch.Decode(data)
		require.NoError(t, err)
		require.NoError(t, m.Apply(back))
		assert.True(t, protocol.Equal(target, m.View()), s)

		blob, err := m.Encode()
		require.NoError(t, err)
		m, err = model.Decode(blob)
		require.NoError(t, err)
		assert.True(t, protocol.Equal(target, m.View()), s)
	}
}

func TestSpans(t *testing.T) {
	ids := []clock.Ts{{Sid: 1, Time: 3}, {Sid: 1, Time: 4}, {Sid: 2, Time: 5}, {Sid: 2, Time: 7}}
	assert.Equal(t, []clock.Tss{{Sid: 1, Time: 3, Span: 2}, {Sid: 2, Time: 5, Span: 1}, {Sid: 2, Time: 7, Span: 1}}, spans(ids))
}
