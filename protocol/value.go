package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"

	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// UndefinedType marks an absent value. A constant holding it is how
// objects and array slots express deletion.
type UndefinedType struct{}

var Undefined = UndefinedType{}

func (UndefinedType) String() string { return "undefined" }

var ErrUnsupportedValue = errors.New("protocol: unsupported value")

const maxSafeInt = 1<<53 - 1

/*
	Normalize maps a host value onto the value set the engine stores:

	nil, bool, int64, uint64 (above MaxInt64 only), float64, string,
	[]byte, []any, map[string]any and Undefined.

	Integral floats become int64 so that 1.0 decoded by encoding/json
	and the literal 1 produce the same constant.
*/
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, UndefinedType:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return normUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normUint(x), nil
	case float32:
		return normFloat(float64(x))
	case float64:
		return normFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, ErrUnsupportedValue
		}
		return normFloat(f)
	case []byte:
		return append([]byte{}, x...), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrUnsupportedValue
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return nil, ErrUnsupportedValue
}

func normUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func normFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ErrUnsupportedValue
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInt {
		return int64(f), nil
	}
	return f, nil
}

// IsScalar reports values stored as plain constants: null, booleans
// and numbers. Strings get their own node.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, []any, map[string]any, []byte:
		return false
	}
	return true
}

func number(v any) (i int64, u uint64, f float64, kind byte) {
	switch x := v.(type) {
	case int64:
		return x, 0, 0, 'i'
	case uint64:
		return 0, x, 0, 'u'
	case float64:
		return 0, 0, x, 'f'
	}
	return 0, 0, 0, 0
}

func numEqual(a, b any) (eq bool, ok bool) {
	ai, au, af, ak := number(a)
	bi, bu, bf, bk := number(b)
	if ak == 0 || bk == 0 {
		return false, false
	}
	toF := func(i int64, u uint64, f float64, k byte) float64 {
		switch k {
		case 'i':
			return float64(i)
		case 'u':
			return float64(u)
		}
		return f
	}
	switch {
	case ak == 'i' && bk == 'i':
		return ai == bi, true
	case ak == 'u' && bk == 'u':
		return au == bu, true
	case ak == 'i' && bk == 'u':
		return ai >= 0 && uint64(ai) == bu, true
	case ak == 'u' && bk == 'i':
		return bi >= 0 && uint64(bi) == au, true
	}
	return toF(ai, au, af, ak) == toF(bi, bu, bf, bk), true
}

// Equal is deep value equality. Numbers compare by value across
// int64, uint64 and float64.
func Equal(a, b any) bool {
	if eq, ok := numEqual(a, b); ok {
		return eq
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool, string, UndefinedType:
		return a == b
	case []byte:
		y, ok := b.([]byte)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// ParseJSON decodes text into the normalized value set.
func ParseJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return Normalize(v)
}

// FormatJSON renders a value as compact JSON with sorted keys.
// Undefined renders as null.
func FormatJSON(v any) string {
	return string(appendJSON(nil, v))
}

func appendJSON(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil, UndefinedType:
		return append(b, "null"...)
	case bool:
		return strconv.AppendBool(b, x)
	case int64:
		return strconv.AppendInt(b, x, 10)
	case uint64:
		return strconv.AppendUint(b, x, 10)
	case float64:
		return strconv.AppendFloat(b, x, 'g', -1, 64)
	case string:
		s, _ := json.Marshal(x)
		return append(b, s...)
	case []byte:
		b = append(b, '[')
		for i, e := range x {
			if i > 0 {
				b = append(b, ',')
			}
			b = strconv.AppendUint(b, uint64(e), 10)
		}
		return append(b, ']')
	case []any:
		b = append(b, '[')
		for i, e := range x {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendJSON(b, e)
		}
		return append(b, ']')
	case map[string]any:
		b = append(b, '{')
		for i, k := range utils.SortedKeys(x) {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendJSON(b, k)
			b = append(b, ':')
			b = appendJSON(b, x[k])
		}
		return append(b, '}')
	}
	return append(b, "null"...)
}
