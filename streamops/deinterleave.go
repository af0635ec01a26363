package streamops

import (
	"pipelined.dev/flow"
)

type deinterleave struct {
	nstreams  int
	blocksize int
	current   int
}

// Deinterleave splits input into nstreams outputs. Consecutive blocks of
// blocksize items are sent to outputs in round-robin order.
func Deinterleave(nstreams, blocksize, itemSize int) *flow.Block {
	if nstreams < 1 || blocksize < 1 {
		panic("deinterleave: nstreams and blocksize must be positive")
	}
	return flow.NewBlock("deinterleave", &deinterleave{nstreams: nstreams, blocksize: blocksize},
		flow.Inputs(inputs(1, itemSize)...),
		flow.Outputs(outputs(nstreams, itemSize)...),
		flow.OutputMultiple(blocksize),
		flow.RelativeRate(1/float64(nstreams)),
	)
}

func (d *deinterleave) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	nout := flow.MinItems(nil, out)
	minOutput := d.blocksize * (in[0].NItems / (d.blocksize * d.nstreams))
	if minOutput < 1 {
		return flow.WorkInsufficientInput, nil
	}
	nout = min(nout, minOutput)

	size := d.blocksize * in[0].Port.ItemSize()
	src := in[0].Items()
	total := nout * d.nstreams
	skip, acc := 0, 0
	for count := 0; count < total; count += d.blocksize {
		dst := out[d.current].Items()
		copy(dst[skip*size:(skip+1)*size], src[:size])
		src = src[size:]
		out[d.current].NProduced += d.blocksize
		d.current = (d.current + 1) % d.nstreams

		// skip advances after a full pass over outputs
		acc++
		if acc >= d.nstreams {
			skip++
			acc = 0
		}
	}
	in[0].Consume(total)
	return flow.WorkOK, nil
}
