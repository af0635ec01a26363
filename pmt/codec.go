package pmt

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrFormat is returned when encoded value is malformed.
var ErrFormat = errors.New("pmt: malformed value")

// maxDepth limits nesting of vectors and maps on decode.
const maxDepth = 64

// Marshal encodes value into binary form: kind byte followed by little
// endian payload. Map keys are written in sorted order so encoding is
// deterministic.
func Marshal(v Value) []byte {
	return appendValue(nil, v)
}

// AppendMarshal appends encoded value to b.
func AppendMarshal(b []byte, v Value) []byte {
	return appendValue(b, v)
}

func appendValue(b []byte, v Value) []byte {
	k := v.Kind()
	b = append(b, byte(k))
	switch t := v.v.(type) {
	case bool:
		if t {
			return append(b, 1)
		}
		return append(b, 0)
	case int64:
		return binary.LittleEndian.AppendUint64(b, uint64(t))
	case uint64:
		return binary.LittleEndian.AppendUint64(b, t)
	case float64:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(t))
	case complex128:
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(real(t)))
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(imag(t)))
	case string:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t)))
		return append(b, t...)
	case []byte:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t)))
		return append(b, t...)
	case []Value:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t)))
		for i := range t {
			b = appendValue(b, t[i])
		}
		return b
	case map[string]Value:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t)))
		for _, key := range sortedKeys(t) {
			b = binary.LittleEndian.AppendUint64(b, uint64(len(key)))
			b = append(b, key...)
			b = appendValue(b, t[key])
		}
		return b
	}
	return b
}

// Unmarshal decodes a single value from b. It returns the value and the
// number of bytes consumed.
func Unmarshal(b []byte) (Value, int, error) {
	d := decoder{b: b}
	v, err := d.value(0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, d.pos, nil
}

type decoder struct {
	b   []byte
	pos int
}

func (d *decoder) need(n uint64) error {
	if n > uint64(len(d.b)-d.pos) {
		return fmt.Errorf("%w: need %d bytes at %d, have %d", ErrFormat, n, d.pos, len(d.b)-d.pos)
	}
	return nil
}

func (d *decoder) uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	u := binary.LittleEndian.Uint64(d.b[d.pos:])
	d.pos += 8
	return u, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint64()
	if err != nil {
		return nil, err
	}
	if err := d.need(n); err != nil {
		return nil, err
	}
	s := d.b[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return s, nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting too deep", ErrFormat)
	}
	if err := d.need(1); err != nil {
		return Value{}, err
	}
	k := Kind(d.b[d.pos])
	d.pos++
	switch k {
	case Null:
		return Value{}, nil
	case BoolKind:
		if err := d.need(1); err != nil {
			return Value{}, err
		}
		b := d.b[d.pos]
		d.pos++
		return Bool(b != 0), nil
	case IntKind:
		u, err := d.uint64()
		return Int(int64(u)), err
	case UintKind:
		u, err := d.uint64()
		return Uint(u), err
	case FloatKind:
		u, err := d.uint64()
		return Float(math.Float64frombits(u)), err
	case ComplexKind:
		re, err := d.uint64()
		if err != nil {
			return Value{}, err
		}
		im, err := d.uint64()
		return Complex(complex(math.Float64frombits(re), math.Float64frombits(im))), err
	case StringKind:
		s, err := d.bytes()
		return String(string(s)), err
	case BytesKind:
		s, err := d.bytes()
		return Bytes(s), err
	case VectorKind:
		n, err := d.uint64()
		if err != nil {
			return Value{}, err
		}
		// every element takes at least one byte
		if err := d.need(n); err != nil {
			return Value{}, err
		}
		vs := make([]Value, n)
		for i := range vs {
			if vs[i], err = d.value(depth + 1); err != nil {
				return Value{}, err
			}
		}
		return Value{v: vs}, nil
	case MapKind:
		n, err := d.uint64()
		if err != nil {
			return Value{}, err
		}
		if err := d.need(n); err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			key, err := d.bytes()
			if err != nil {
				return Value{}, err
			}
			if m[string(key)], err = d.value(depth + 1); err != nil {
				return Value{}, err
			}
		}
		return Value{v: m}, nil
	}
	return Value{}, fmt.Errorf("%w: unknown kind %d", ErrFormat, k)
}

// EncodeBase64 returns binary form of the value encoded with standard base64.
func EncodeBase64(v Value) string {
	return base64.StdEncoding.EncodeToString(Marshal(v))
}

// DecodeBase64 decodes value produced by EncodeBase64.
func DecodeBase64(s string) (Value, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	v, n, err := Unmarshal(b)
	if err != nil {
		return Value{}, err
	}
	if n != len(b) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrFormat, len(b)-n)
	}
	return v, nil
}
