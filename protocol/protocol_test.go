package protocol

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vu57(v uint64) []byte {
	w := buffers.NewWriter(0)
	WriteVu57(w, v)
	return w.Flush()
}

func TestVu57(t *testing.T) {
	assert.Equal(t, []byte{0x00}, vu57(0))
	assert.Equal(t, []byte{0x7f}, vu57(127))
	assert.Equal(t, []byte{0x80, 0x01}, vu57(128))
	assert.Equal(t, []byte{0xb4, 0xba, 0x04}, vu57(73012))
	max := vu57(1<<57 - 1)
	assert.Len(t, max, 8)
	assert.Equal(t, byte(0xff), max[7])

	for _, v := range []uint64{0, 1, 127, 128, 16383, 16384, 1 << 35, 1<<49 - 1, 1 << 49, 1<<57 - 1} {
		got, err := ReadVu57(buffers.NewReader(vu57(v)))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ReadVu57(buffers.NewReader([]byte{0x80}))
	assert.Error(t, err)
}

func TestB1vu56(t *testing.T) {
	enc := func(flag byte, v uint64) []byte {
		w := buffers.NewWriter(0)
		WriteB1vu56(w, flag, v)
		return w.Flush()
	}
	assert.Equal(t, []byte{0x01}, enc(0, 1))
	assert.Equal(t, []byte{0x85}, enc(1, 5))
	assert.Equal(t, []byte{0x40, 0x01}, enc(0, 64))
	assert.Equal(t, []byte{0xff, 0x01}, enc(1, 127))
	assert.Len(t, enc(0, 1<<56-1), 8)

	for _, v := range []uint64{0, 63, 64, 8191, 8192, 1 << 41, 1<<48 - 1, 1 << 48, 1<<56 - 1} {
		for _, flag := range []byte{0, 1} {
			f, got, err := ReadB1vu56(buffers.NewReader(enc(flag, v)))
			require.NoError(t, err)
			assert.Equal(t, flag, f)
			assert.Equal(t, v, got)
		}
	}
}

func TestCompactID(t *testing.T) {
	w := buffers.NewWriter(0)
	WriteID(w, 70000, clock.Ts{Sid: 70000, Time: 5})
	WriteID(w, 70000, clock.Ts{Sid: 80000, Time: 6})
	data := w.Flush()
	assert.Equal(t, byte(0x05), data[0])
	assert.Equal(t, byte(0x86), data[1])

	r := buffers.NewReader(data)
	a, err := ReadID(r, 70000)
	require.NoError(t, err)
	b, err := ReadID(r, 70000)
	require.NoError(t, err)
	assert.Equal(t, clock.Ts{Sid: 70000, Time: 5}, a)
	assert.Equal(t, clock.Ts{Sid: 80000, Time: 6}, b)
	assert.True(t, r.EOF())
}

func TestEncodeCBOR(t *testing.T) {
	cases := []struct {
		in  any
		out []byte
	}{
		{nil, []byte{0xf6}},
		{true, []byte{0xf5}},
		{false, []byte{0xf4}},
		{Undefined, []byte{0xf7}},
		{int64(1), []byte{0x01}},
		{int64(-1), []byte{0x20}},
		{int64(500), []byte{0x19, 0x01, 0xf4}},
		{1.5, []byte{0xfa, 0x3f, 0xc0, 0x00, 0x00}},
		{0.1, []byte{0xfb, 0x3f, 0xb9, 0x99, 0x99, 0x99, 0x99, 0x99, 0x9a}},
		{"x", []byte{0x61, 'x'}},
		{"abcdef", []byte{0x78, 0x06, 'a', 'b', 'c', 'd', 'e', 'f'}},
		{[]any{int64(1), "a"}, []byte{0x82, 0x01, 0x61, 'a'}},
		{map[string]any{"b": int64(2), "a": int64(1)}, []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'b', 0x02}},
	}
	for _, c := range cases {
		got, err := EncodeCBOR(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.out, got, "%v", c.in)
	}
	_, err := EncodeCBOR(math.Inf(1))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestDecodeCBOR(t *testing.T) {
	v, rest, err := DecodeCBOR([]byte{0xf7, 0x01})
	require.NoError(t, err)
	assert.Equal(t, Undefined, v)
	assert.Equal(t, []byte{0x01}, rest)

	v, rest, err = DecodeCBOR([]byte{0xa2, 0x61, 'a', 0x01, 0x61, 'b', 0x82, 0x20, 0xf6, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, rest)
	assert.True(t, Equal(map[string]any{"a": int64(1), "b": []any{int64(-1), nil}}, v))

	v, _, err = DecodeCBOR([]byte{0x42, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, v)

	_, _, err = DecodeCBOR([]byte{0xc1, 0x01})
	assert.ErrorIs(t, err, ErrBadCBOR)
	_, _, err = DecodeCBOR([]byte{0x62, 'a'})
	assert.ErrorIs(t, err, ErrBadCBOR)
	_, _, err = DecodeCBOR(nil)
	assert.ErrorIs(t, err, ErrBadCBOR)
}

func TestDecodeCBOR_ByteStrings(t *testing.T) {
	v, _, err := DecodeCBOR([]byte{0x40})
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)

	v, _, err = DecodeCBOR([]byte{0xa1, 0x61, 'k', 0x43, 0x00, 0x7f, 0xff})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": []any{int64(0), int64(127), int64(255)}}, v)

	again, err := EncodeCBOR(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0x61, 'k', 0x83, 0x00, 0x18, 0x7f, 0x18, 0xff}, again)
}

func TestNormalize(t *testing.T) {
	var raw any
	require.NoError(t, json.Unmarshal([]byte(`{"a":[1,2.5,"x",null,true]}`), &raw))
	n, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{int64(1), 2.5, "x", nil, true}}, n)

	n, err = Normalize([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, n)

	n, err = Normalize(map[string]int{"k": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": int64(3)}, n)

	_, err = Normalize(math.NaN())
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Normalize(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Normalize(map[int]int{1: 1})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(int64(1), 1.0))
	assert.True(t, Equal(uint64(5), int64(5)))
	assert.False(t, Equal(int64(-1), uint64(math.MaxUint64)))
	assert.False(t, Equal("1", int64(1)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Undefined))
	assert.True(t, Equal([]any{map[string]any{}}, []any{map[string]any{}}))
	assert.False(t, Equal(map[string]any{"a": nil}, map[string]any{"b": nil}))
}

func TestFormatJSON(t *testing.T) {
	v := map[string]any{"b": []any{int64(1), 2.5, "q"}, "a": nil}
	assert.Equal(t, `{"a":null,"b":[1,2.5,"q"]}`, FormatJSON(v))
	back, err := ParseJSON([]byte(FormatJSON(v)))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
