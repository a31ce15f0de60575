package joy

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

const emptyObjectModel = "00000002114001b4ba0402"

func js(t *testing.T, s string) any {
	v, err := protocol.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func opCodes(p *patch.Patch) []patch.OpCode {
	out := make([]patch.OpCode, len(p.Ops))
	for i := range p.Ops {
		out[i] = p.Ops[i].Code
	}
	return out
}

// roundtrip diffs m to target, ships the patch as bytes and applies it.
func roundtrip(t *testing.T, m *model.Model, target any) *patch.Patch {
	p, err := DiffModel(m, target)
	require.NoError(t, err)
	require.NotNil(t, p)
	data, err := patch.Encode(p)
	require.NoError(t, err)
	require.NoError(t, ApplyPatch(m, data))
	assert.True(t, protocol.Equal(target, ViewModel(m)), protocol.FormatJSON(ViewModel(m)))
	return p
}

func TestCreateModel_EmptyObjectBytes(t *testing.T) {
	m, err := CreateModel(map[string]any{}, 73012)
	require.NoError(t, err)
	data, err := ModelToBinary(m)
	require.NoError(t, err)
	assert.Equal(t, emptyObjectModel, HexEncode(data))

	_, err = CreateModel(nil, 12)
	assert.ErrorIs(t, err, joy_errors.ErrInvalidSessionID)
}

func TestNoopDiff(t *testing.T) {
	data, err := HexDecode(emptyObjectModel)
	require.NoError(t, err)
	m, err := ModelFromBinary(data)
	require.NoError(t, err)
	p, err := DiffModel(m, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEmptyRootFill(t *testing.T) {
	data, err := HexDecode(emptyObjectModel)
	require.NoError(t, err)
	m, err := ModelFromBinary(data)
	require.NoError(t, err)
	p := roundtrip(t, m, js(t, `{"a":1,"b":"x"}`))
	assert.Equal(t, []patch.OpCode{patch.OpNewCon, patch.OpNewStr, patch.OpInsStr, patch.OpInsObj}, opCodes(p))
}

func TestScalarUpdate(t *testing.T) {
	m, err := CreateModel(js(t, `{"doc":{"a":1,"b":"x","c":true}}`), 70001)
	require.NoError(t, err)
	p := roundtrip(t, m, js(t, `{"doc":{"a":2,"b":"x","d":null}}`))
	last := p.Ops[len(p.Ops)-1]
	require.Equal(t, patch.OpInsObj, last.Code)
	keys := []string{}
	for _, e := range last.Keys {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"c", "a", "d"}, keys)
}

func TestArrayDelta(t *testing.T) {
	m := model.New(70005)
	tuple := patch.SchemaVec{patch.SchemaCon{Value: int64(1)}, patch.SchemaCon{Value: int64(2)}}
	base := patch.SchemaPatch(patch.SchemaObj{Req: []patch.SchemaField{{Key: "v", Node: tuple}}}, m.Clock(70005))
	data, err := patch.Encode(base)
	require.NoError(t, err)
	require.NoError(t, ApplyPatch(m, data))
	require.Equal(t, js(t, `{"v":[1,2]}`), ViewModel(m))

	p := roundtrip(t, m, js(t, `{"v":[1,3]}`))
	assert.Contains(t, opCodes(p), patch.OpInsVec)
	assert.NotContains(t, opCodes(p), patch.OpDel)

	m, err = CreateModel(js(t, `{"v":[1,2]}`), 70005)
	require.NoError(t, err)
	p = roundtrip(t, m, js(t, `{"v":[1,3]}`))
	assert.NotContains(t, opCodes(p), patch.OpDel)
}

func TestArrayShrink(t *testing.T) {
	m, err := CreateModel(js(t, `{"a":[1,"x",2],"b":["q",9]}`), 70002)
	require.NoError(t, err)
	p := roundtrip(t, m, js(t, `{"a":[1,"x","y",2],"b":[9]}`))
	assert.Contains(t, opCodes(p), patch.OpInsArr)
	assert.Contains(t, opCodes(p), patch.OpUpdArr)
}

func TestBinaryNested(t *testing.T) {
	m, err := CreateModel(map[string]any{"doc": map[string]any{"b": []byte{1, 2, 3}}}, 70003)
	require.NoError(t, err)
	p := roundtrip(t, m, js(t, `{"doc":{"b":{"0":1,"1":4,"2":3}}}`))
	assert.Contains(t, opCodes(p), patch.OpInsBin)
	assert.Contains(t, opCodes(p), patch.OpDel)
}

func TestMerge_OrdersPatches(t *testing.T) {
	a, err := CreateModel(map[string]any{}, 70004)
	require.NoError(t, err)
	b, err := ForkModel(a, nil)
	require.NoError(t, err)
	assert.True(t, ValidSessionID(b.Sid()))
	assert.NotEqual(t, a.Sid(), b.Sid())

	doc := NewDocument(a)
	p1, err := doc.Set([]any{"s"}, "ab")
	require.NoError(t, err)
	p2, err := doc.StrIns([]any{"s"}, 1, "XY")
	require.NoError(t, err)

	var blobs [][]byte
	for _, p := range []*patch.Patch{p2, p1} {
		data, err := patch.Encode(p)
		require.NoError(t, err)
		blobs = append(blobs, data)
	}
	blobs = append(blobs, nil)
	require.NoError(t, Merge(b, blobs))
	assert.Equal(t, map[string]any{"s": "aXYb"}, ViewModel(b))
	assert.True(t, model.Cmp(a, b, true))

	require.NoError(t, Merge(b, nil))
}

func TestSizeCaps(t *testing.T) {
	_, err := ModelFromBinary(make([]byte, MaxModelSize+1))
	assert.ErrorIs(t, err, joy_errors.ErrModelBinaryTooLarge)
	_, err = ModelLoad(make([]byte, MaxModelSize+1), 70005)
	assert.ErrorIs(t, err, joy_errors.ErrModelBinaryTooLarge)
}

func TestModelLoad(t *testing.T) {
	m, err := CreateModel(js(t, `{"k":[1,2]}`), 70006)
	require.NoError(t, err)
	data, err := ModelToBinary(m)
	require.NoError(t, err)

	_, err = ModelLoad(data, 1)
	assert.ErrorIs(t, err, joy_errors.ErrInvalidSessionID)

	l, err := ModelLoad(data, 70007)
	require.NoError(t, err)
	assert.Equal(t, uint64(70007), l.Sid())
	assert.Equal(t, m.View(), l.View())

	_, err = ModelLoad(nil, 70007)
	assert.ErrorIs(t, err, joy_errors.ErrInvalidClockTable)
}

func TestForkModel(t *testing.T) {
	m, err := CreateModel(js(t, `[1]`), 70008)
	require.NoError(t, err)
	bad := uint64(3)
	_, err = ForkModel(m, &bad)
	assert.ErrorIs(t, err, joy_errors.ErrInvalidSessionID)
	good := uint64(70009)
	f, err := ForkModel(m, &good)
	require.NoError(t, err)
	assert.Equal(t, good, f.Sid())
	assert.Equal(t, []clock.Ts{{Sid: good, Time: m.Time()}, {Sid: 70008, Time: m.Time()}}, f.Table())
}

func TestHex(t *testing.T) {
	data, err := HexDecode(" 0aFF ")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xff}, data)
	_, err = HexDecode("abc")
	assert.ErrorIs(t, err, joy_errors.ErrInvalidHex)
	_, err = HexDecode("zz")
	assert.ErrorIs(t, err, joy_errors.ErrInvalidHex)
}

func TestSessionIDFromSeed(t *testing.T) {
	assert.Equal(t, clock.SidUserMin, SessionIDFromSeed(0))
	assert.Equal(t, SessionIDFromSeed(42), SessionIDFromSeed(42))
	assert.Equal(t, clock.SidUserMin, SessionIDFromSeed(clock.SidMax-clock.SidUserMin+1))
	for i := 0; i < 16; i++ {
		assert.True(t, ValidSessionID(GenerateSessionID()))
	}
}

func TestDocument(t *testing.T) {
	m, err := CreateModel(js(t, `{"list":[1,2],"name":"ab"}`), 70010)
	require.NoError(t, err)
	doc := NewDocument(m)
	var seen []*patch.Patch
	id := doc.OnChange(func(p *patch.Patch) { seen = append(seen, p) })

	_, err = doc.Insert([]any{"list"}, 1, "x")
	require.NoError(t, err)
	_, err = doc.Set([]any{"meta", "n"}, 5)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = doc.Set([]any{"meta"}, map[string]any{"n": 5})
	require.NoError(t, err)
	_, err = doc.Remove([]any{"list", 0})
	require.NoError(t, err)
	_, err = doc.StrIns([]any{"name"}, 2, "c")
	require.NoError(t, err)
	assert.True(t, protocol.Equal(js(t, `{"list":["x",2],"name":"abc","meta":{"n":5}}`), doc.View()))

	v, err := doc.Find("meta", "n")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	_, err = doc.StrIns([]any{"list"}, 0, "q")
	assert.ErrorIs(t, err, joy_errors.ErrUnsupportedShape)
	assert.Len(t, seen, 4)

	doc.OffChange(id)
	p, err := doc.Set([]any{"name"}, "abc")
	require.NoError(t, err)
	assert.Nil(t, p)
	_, err = doc.Remove([]any{"meta"})
	require.NoError(t, err)
	assert.Len(t, seen, 4)
}

func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(ApplyFailures)
	m, err := CreateModel(map[string]any{}, 70011)
	require.NoError(t, err)
	b := patch.NewBuilder(clock.NewLogicalClock(70012, 1))
	b.InsStr(clock.Ts{Sid: 70011, Time: 1}, clock.Ts{Sid: 70011, Time: 1}, "x")
	data, err := patch.Encode(b.Flush())
	require.NoError(t, err)
	assert.Error(t, ApplyPatch(m, data))
	assert.Equal(t, before+1, testutil.ToFloat64(ApplyFailures))
	assert.Len(t, Collectors(), 4)
}
