package streamops

import (
	"sync"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

// Annotator tags every n-th output item with a sequence number and its
// alias. Items are copied from input i to output i where both exist.
type Annotator struct {
	*flow.Block
	every uint64
	seq   uint64

	mu     sync.Mutex
	stored []tag.Tag
}

// NewAnnotator returns annotator with nin inputs and nout outputs.
func NewAnnotator(itemSize int, every uint64, nin, nout int, policy tag.Policy) *Annotator {
	if every == 0 {
		panic("annotator: every must be positive")
	}
	a := &Annotator{every: every}
	a.Block = flow.NewBlock("annotator", a,
		flow.Inputs(inputs(nin, itemSize)...),
		flow.Outputs(outputs(nout, itemSize)...),
		flow.TagPolicy(policy),
	)
	return a
}

// Tags returns tags seen on inputs.
func (a *Annotator) Tags() []tag.Tag {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]tag.Tag(nil), a.stored...)
}

func (a *Annotator) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	n := flow.MinItems(in, out)
	a.mu.Lock()
	for i := range in {
		a.stored = append(a.stored, in[i].TagsInRange(0, n)...)
	}
	a.mu.Unlock()
	if len(out) == 0 {
		return flow.WorkOK, nil
	}

	srcid := pmt.String(a.Alias())
	abs := out[0].ItemsWritten()
	for j := uint64(0); j < uint64(n); j++ {
		if (abs+j)%a.every != 0 {
			continue
		}
		for i := range out {
			out[i].AddTag(abs+j, tag.Map{"seq": pmt.Uint(a.seq), "srcid": srcid})
			a.seq++
		}
	}
	for i := range out {
		if i < len(in) {
			copyItems(out[i], in[i], n)
		}
	}
	flow.ProduceEach(out, n)
	return flow.WorkOK, nil
}
