package protocol

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

const (
	cborUndefined = 0xf7
	cborNull      = 0xf6
	cborTrue      = 0xf5
	cborFalse     = 0xf4
	cborF32       = 0xfa
	cborF64       = 0xfb
)

var ErrBadCBOR = errors.New("protocol: invalid cbor")

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TagsMd:          cbor.TagsForbidden,
		MaxNestedLevels: 256,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// WriteCBORHead writes a major type with its minimal length argument.
func WriteCBORHead(w *buffers.Writer, major byte, n uint64) {
	m := major << 5
	switch {
	case n <= 23:
		w.U8(m | byte(n))
	case n <= 0xff:
		w.U8(m | 24)
		w.U8(byte(n))
	case n <= 0xffff:
		w.U8U16(m|25, uint16(n))
	case n <= 0xffffffff:
		w.U8U32(m|26, uint32(n))
	default:
		w.U8U64(m|27, n)
	}
}

// WriteCBORText picks the header width from four bytes per character,
// the way json-pack reserves space before it knows the UTF-8 length.
func WriteCBORText(w *buffers.Writer, s string) {
	n := len(s)
	maxSize := utf8.RuneCountInString(s) * 4
	switch {
	case maxSize <= 23:
		w.U8(0x60 + byte(n))
	case maxSize <= 0xff:
		w.U8(0x78)
		w.U8(byte(n))
	case maxSize <= 0xffff:
		w.U8U16(0x79, uint16(n))
	default:
		w.U8U32(0x7a, uint32(n))
	}
	w.Utf8(s)
}

func WriteCBOR(w *buffers.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		w.U8(cborNull)
	case UndefinedType:
		w.U8(cborUndefined)
	case bool:
		if x {
			w.U8(cborTrue)
		} else {
			w.U8(cborFalse)
		}
	case int64:
		if x >= 0 {
			WriteCBORHead(w, 0, uint64(x))
		} else {
			WriteCBORHead(w, 1, uint64(-1-x))
		}
	case uint64:
		WriteCBORHead(w, 0, x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrUnsupportedValue
		}
		if f := float32(x); float64(f) == x {
			w.U8(cborF32)
			w.F32(f)
		} else {
			w.U8(cborF64)
			w.F64(x)
		}
	case string:
		WriteCBORText(w, x)
	case []byte:
		WriteCBORHead(w, 2, uint64(len(x)))
		w.Bytes(x)
	case []any:
		WriteCBORHead(w, 4, uint64(len(x)))
		for _, e := range x {
			if err := WriteCBOR(w, e); err != nil {
				return err
			}
		}
	case map[string]any:
		WriteCBORHead(w, 5, uint64(len(x)))
		for _, k := range utils.SortedKeys(x) {
			WriteCBORText(w, k)
			if err := WriteCBOR(w, x[k]); err != nil {
				return err
			}
		}
	default:
		n, err := Normalize(v)
		if err != nil {
			return err
		}
		return WriteCBOR(w, n)
	}
	return nil
}

func EncodeCBOR(v any) ([]byte, error) {
	w := buffers.NewWriter(16)
	if err := WriteCBOR(w, v); err != nil {
		return nil, err
	}
	return w.Flush(), nil
}

// DecodeCBOR reads one data item, returns it with the unread rest.
// A top-level undefined decodes as Undefined; nested ones become nil.
// Byte strings decode as arrays of numbers.
func DecodeCBOR(data []byte) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrBadCBOR
	}
	if data[0] == cborUndefined {
		return Undefined, data[1:], nil
	}
	var v any
	rest, err := decMode.UnmarshalFirst(data, &v)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadCBOR, err)
	}
	n, err := fromCBOR(v)
	if err != nil {
		return nil, nil, err
	}
	return n, rest, nil
}

// ReadCBOR decodes one item at the reader position.
func ReadCBOR(r *buffers.Reader) (any, error) {
	v, rest, err := DecodeCBOR(r.Rest())
	if err != nil {
		return nil, err
	}
	r.X = len(r.Data) - len(rest)
	return v, nil
}

func ReadCBORText(r *buffers.Reader) (string, error) {
	v, err := ReadCBOR(r)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrBadCBOR
	}
	return s, nil
}

/*
	fromCBOR maps decoded items onto the normalized value set. Byte
	strings have no JSON form and become arrays of their byte values, so
	a constant written elsewhere as h'0102' reads back as [1, 2] and
	re-encodes as a CBOR array.
*/
func fromCBOR(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case uint64:
		return normUint(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = int64(b)
		}
		return out, nil
	case []any:
		for i, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case big.Int, *big.Int:
		return nil, fmt.Errorf("%w: integer out of range", ErrBadCBOR)
	}
	return nil, fmt.Errorf("%w: unsupported item %T", ErrBadCBOR, v)
}
