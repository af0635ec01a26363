package streamops

import (
	"fmt"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
)

// K is the parameter of MultiplyConst block.
const K = "k"

// Number is an item type supported by MultiplyConst.
type Number interface {
	int16 | int32 | int64 | float32 | float64 | complex64 | complex128
}

type multiplyConst[T Number] struct {
	k    T
	vlen int
}

// MultiplyConst multiplies vectors of vlen items by constant k. The
// constant can be changed with the "k" parameter.
func MultiplyConst[T Number](k T, vlen int) *flow.Block {
	if vlen < 1 {
		vlen = 1
	}
	return flow.NewBlock("multiply_const", &multiplyConst[T]{k: k, vlen: vlen},
		flow.Inputs(flow.Typed[T]("in", flow.Input, flow.Shape(vlen))),
		flow.Outputs(flow.Typed[T]("out", flow.Output, flow.Shape(vlen))),
		flow.Param(K, pmt.MustFrom(k)),
	)
}

func (m *multiplyConst[T]) ParamChanged(name string, v pmt.Value) error {
	if name != K {
		return nil
	}
	k, ok := convert[T](v)
	if !ok {
		return fmt.Errorf("invalid %s: %v", K, v)
	}
	m.k = k
	return nil
}

func (m *multiplyConst[T]) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	src := flow.InputItems[T](in[0])
	dst := flow.OutputItems[T](out[0])
	n := min(len(src), len(dst))
	for i := range dst[:n] {
		dst[i] = src[i] * m.k
	}
	out[0].Produce(n / m.vlen)
	return flow.WorkOK, nil
}

// convert returns value as T if pmt holds a compatible number.
func convert[T Number](v pmt.Value) (T, bool) {
	var k T
	switch p := any(&k).(type) {
	case *int16:
		i, ok := v.Int()
		*p = int16(i)
		return k, ok
	case *int32:
		i, ok := v.Int()
		*p = int32(i)
		return k, ok
	case *int64:
		i, ok := v.Int()
		*p = i
		return k, ok
	case *float32:
		f, ok := v.Float()
		*p = float32(f)
		return k, ok
	case *float64:
		f, ok := v.Float()
		*p = f
		return k, ok
	case *complex64:
		c, ok := v.Complex()
		*p = complex64(c)
		return k, ok
	case *complex128:
		c, ok := v.Complex()
		*p = c
		return k, ok
	}
	return k, false
}
