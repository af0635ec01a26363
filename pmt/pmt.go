// Package pmt provides polymorphic values exchanged between blocks: tag
// values, parameter values and control messages.
package pmt

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the type of value held by Value.
type Kind uint8

// Supported kinds.
const (
	Null Kind = iota
	BoolKind
	IntKind
	UintKind
	FloatKind
	ComplexKind
	StringKind
	BytesKind
	VectorKind
	MapKind
)

var kindNames = [...]string{
	Null:        "null",
	BoolKind:    "bool",
	IntKind:     "int",
	UintKind:    "uint",
	FloatKind:   "float",
	ComplexKind: "complex",
	StringKind:  "string",
	BytesKind:   "bytes",
	VectorKind:  "vector",
	MapKind:     "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is an immutable polymorphic value. Zero value is Null.
type Value struct {
	v any
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{v: b} }

// Int returns a signed integer value.
func Int(i int64) Value { return Value{v: i} }

// Uint returns an unsigned integer value.
func Uint(u uint64) Value { return Value{v: u} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{v: f} }

// Complex returns a complex value.
func Complex(c complex128) Value { return Value{v: c} }

// String returns a string value.
func String(s string) Value { return Value{v: s} }

// Bytes returns a value holding a copy of b.
func Bytes(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{v: c}
}

// Vector returns a value holding a copy of vs.
func Vector(vs ...Value) Value {
	c := make([]Value, len(vs))
	copy(c, vs)
	return Value{v: c}
}

// Map returns a value holding a copy of m.
func Map(m map[string]Value) Value {
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return Value{v: c}
}

// From converts a native Go value into Value.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case complex64:
		return Complex(complex128(t)), nil
	case complex128:
		return Complex(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []Value:
		return Vector(t...), nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := From(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = v
		}
		return Value{v: m}, nil
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			v, err := From(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			vs[i] = v
		}
		return Value{v: vs}, nil
	}
	return Value{}, fmt.Errorf("unsupported type %T", x)
}

// MustFrom is like From but panics on unsupported types.
func MustFrom(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind returns the kind of held value.
func (v Value) Kind() Kind {
	switch v.v.(type) {
	case bool:
		return BoolKind
	case int64:
		return IntKind
	case uint64:
		return UintKind
	case float64:
		return FloatKind
	case complex128:
		return ComplexKind
	case string:
		return StringKind
	case []byte:
		return BytesKind
	case []Value:
		return VectorKind
	case map[string]Value:
		return MapKind
	}
	return Null
}

// IsNull reports if value is empty.
func (v Value) IsNull() bool { return v.v == nil }

// Interface returns the underlying Go value.
func (v Value) Interface() any { return v.v }

// Bool returns held boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// Int returns held integer. Unsigned values that fit are converted.
func (v Value) Int() (int64, bool) {
	switch t := v.v.(type) {
	case int64:
		return t, true
	case uint64:
		if t <= 1<<63-1 {
			return int64(t), true
		}
	}
	return 0, false
}

// Uint returns held unsigned integer. Non-negative signed values are converted.
func (v Value) Uint() (uint64, bool) {
	switch t := v.v.(type) {
	case uint64:
		return t, true
	case int64:
		if t >= 0 {
			return uint64(t), true
		}
	}
	return 0, false
}

// Float returns held number as float64.
func (v Value) Float() (float64, bool) {
	switch t := v.v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// Complex returns held number as complex128.
func (v Value) Complex() (complex128, bool) {
	if c, ok := v.v.(complex128); ok {
		return c, true
	}
	if f, ok := v.Float(); ok {
		return complex(f, 0), true
	}
	return 0, false
}

// Str returns held string.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Bytes returns held bytes. Returned slice must not be modified.
func (v Value) Bytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok
}

// Vector returns held elements. Returned slice must not be modified.
func (v Value) Vector() ([]Value, bool) {
	vs, ok := v.v.([]Value)
	return vs, ok
}

// Map returns held map. Returned map must not be modified.
func (v Value) Map() (map[string]Value, bool) {
	m, ok := v.v.(map[string]Value)
	return m, ok
}

// Get returns the map entry for key.
func (v Value) Get(key string) (Value, bool) {
	m, ok := v.v.(map[string]Value)
	if !ok {
		return Value{}, false
	}
	e, ok := m[key]
	return e, ok
}

// Equal reports if two values hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch t := v.v.(type) {
	case []byte:
		return string(t) == string(o.v.([]byte))
	case []Value:
		ov := o.v.([]Value)
		if len(t) != len(ov) {
			return false
		}
		for i := range t {
			if !t[i].Equal(ov[i]) {
				return false
			}
		}
		return true
	case map[string]Value:
		om := o.v.(map[string]Value)
		if len(t) != len(om) {
			return false
		}
		for k, e := range t {
			oe, ok := om[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return v.v == o.v
}

func (v Value) String() string {
	switch t := v.v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case []byte:
		return fmt.Sprintf("bytes[%d]", len(t))
	case []Value:
		parts := make([]string, len(t))
		for i := range t {
			parts[i] = t[i].String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case map[string]Value:
		keys := sortedKeys(t)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + t[k].String()
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return fmt.Sprint(v.v)
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
