package sioclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
)

// Data is a single payload value. The set of implementations is closed:
// String, Number, Bool, Null, Array, Object, Placeholder and Binary.
type Data interface {
	isData()
}

// String is a JSON string.
type String string

// Number is a JSON number. Integers beyond 2^53 in magnitude, including
// int64 and uint64 values passed to FromAny, lose precision.
type Number float64

// Bool is a JSON boolean.
type Bool bool

// Null is the JSON null value.
type Null struct{}

// Array is an ordered sequence of values.
type Array []Data

// Object maps names to values.
type Object map[string]Data

// Placeholder stands in for the binary attachment with index Num until that
// attachment has arrived.
type Placeholder struct {
	Num int
}

// Binary is an attachment delivered as a separate binary frame.
type Binary []byte

func (String) isData()      {}
func (Number) isData()      {}
func (Bool) isData()        {}
func (Null) isData()        {}
func (Array) isData()       {}
func (Object) isData()      {}
func (Placeholder) isData() {}
func (Binary) isData()      {}

const (
	placeholderKey = "_placeholder"
	placeholderNum = "num"
)

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (p Placeholder) MarshalJSON() ([]byte, error) {
	return []byte(`{"_placeholder":true,"num":` + strconv.Itoa(p.Num) + `}`), nil
}

// Int returns the number as an int64, truncating any fraction.
func (n Number) Int() int64 {
	return int64(n)
}

// IsPlaceholderObject reports whether m has the shape {"_placeholder":true,"num":K}
// and returns K.
func IsPlaceholderObject(m map[string]any) (int, bool) {
	flag, ok := m[placeholderKey].(bool)
	if !ok || !flag {
		return 0, false
	}

	var num float64
	switch v := m[placeholderNum].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		num = f
	case float64:
		num = v
	default:
		return 0, false
	}

	if num < 0 || num > math.MaxInt32 || num != math.Trunc(num) {
		return 0, false
	}
	return int(num), true
}

// DecodeJSON decodes exactly one JSON value into Data. Objects shaped like a
// binary placeholder become Placeholder values.
func DecodeJSON(raw []byte) (Data, error) {
	return decodeJSON(raw, true)
}

// DecodePlainJSON is DecodeJSON for payloads that carry no attachments:
// placeholder-shaped objects stay Objects.
func DecodePlainJSON(raw []byte) (Data, error) {
	return decodeJSON(raw, false)
}

func decodeJSON(raw []byte, placeholders bool) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}

	return fromDecoded(v, placeholders)
}

func fromDecoded(v any, placeholders bool) (Data, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(x), nil
	case []any:
		arr := make(Array, len(x))
		for i, item := range x {
			d, err := fromDecoded(item, placeholders)
			if err != nil {
				return nil, err
			}
			arr[i] = d
		}
		return arr, nil
	case map[string]any:
		if num, ok := IsPlaceholderObject(x); ok && placeholders {
			return Placeholder{Num: num}, nil
		}
		obj := make(Object, len(x))
		for k, item := range x {
			d, err := fromDecoded(item, placeholders)
			if err != nil {
				return nil, err
			}
			obj[k] = d
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported decoded JSON type %T", v)
}

// FromAny converts a Go value into Data. Byte slices become Binary values and
// are sent as attachments. Types without a direct mapping go through
// encoding/json.
func FromAny(v any) (Data, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Data:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Binary(x), nil
	case int:
		return Number(x), nil
	case int8:
		return Number(x), nil
	case int16:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case uint:
		return Number(x), nil
	case uint8:
		return Number(x), nil
	case uint16:
		return Number(x), nil
	case uint32:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case float64:
		return Number(x), nil
	case json.Number:
		return fromDecoded(x, false)
	case []any:
		arr := make(Array, len(x))
		for i, item := range x {
			d, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			arr[i] = d
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(x))
		for k, item := range x {
			d, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			obj[k] = d
		}
		return obj, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return Null{}, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to payload data: %w", v, err)
	}
	return DecodePlainJSON(raw)
}

// FromAnySlice converts every element of args with FromAny.
func FromAnySlice(args []any) ([]Data, error) {
	out := make([]Data, len(args))
	for i, arg := range args {
		d, err := FromAny(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// ToAny converts Data into plain Go values (string, float64, bool, nil,
// []any, map[string]any, []byte).
func ToAny(d Data) any {
	switch x := d.(type) {
	case String:
		return string(x)
	case Number:
		return float64(x)
	case Bool:
		return bool(x)
	case Null, nil:
		return nil
	case Array:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToAny(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = ToAny(item)
		}
		return out
	case Placeholder:
		return map[string]any{placeholderKey: true, placeholderNum: x.Num}
	case Binary:
		return []byte(x)
	}
	panic(fmt.Sprintf("sioclient: unknown Data implementation %T", d))
}

// ToAnySlice converts a payload with ToAny.
func ToAnySlice(data []Data) []any {
	out := make([]any, len(data))
	for i, d := range data {
		out[i] = ToAny(d)
	}
	return out
}
