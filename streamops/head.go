package streamops

import (
	"context"

	"pipelined.dev/flow"
)

type head struct {
	limit  uint64
	copied uint64
}

// Head passes the first n items and finishes.
func Head(itemSize int, n uint64) *flow.Block {
	return flow.NewBlock("head", &head{limit: n},
		flow.Inputs(inputs(1, itemSize)...),
		flow.Outputs(outputs(1, itemSize)...),
	)
}

func (h *head) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	if h.copied >= h.limit {
		return flow.WorkDone, nil
	}
	n := int(min(h.limit-h.copied, uint64(out[0].NItems)))
	copyItems(out[0], in[0], n)
	out[0].Produce(n)
	h.copied += uint64(n)
	if h.copied >= h.limit {
		return flow.WorkDone, nil
	}
	return flow.WorkOK, nil
}

func (h *head) Start(context.Context) error {
	h.copied = 0
	return nil
}
