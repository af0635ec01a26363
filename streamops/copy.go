package streamops

import (
	"fmt"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
)

// Enabled is the parameter of Copy block.
const Enabled = "enabled"

type copier struct {
	enabled bool
}

// Copy passes items through. When disabled, items are dropped.
func Copy(itemSize int) *flow.Block {
	return flow.NewBlock("copy", &copier{enabled: true},
		flow.Inputs(inputs(1, itemSize)...),
		flow.Outputs(outputs(1, itemSize)...),
		flow.Param(Enabled, pmt.Bool(true)),
	)
}

func (c *copier) ParamChanged(name string, v pmt.Value) error {
	if name != Enabled {
		return nil
	}
	enabled, ok := v.Bool()
	if !ok {
		return fmt.Errorf("invalid %s: %v", Enabled, v)
	}
	c.enabled = enabled
	return nil
}

func (c *copier) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	n := flow.MinItems(in, out)
	if !c.enabled {
		in[0].Consume(n)
		return flow.WorkOK, nil
	}
	copyItems(out[0], in[0], n)
	out[0].Produce(n)
	return flow.WorkOK, nil
}
