// Package streamops provides blocks that route, limit and annotate streams
// regardless of item type.
package streamops

import (
	"fmt"

	"pipelined.dev/flow"
)

// portOptions returns item size option for untyped ports. Zero size is
// resolved from connected ports.
func portOptions(itemSize int) []flow.PortOption {
	if itemSize > 0 {
		return []flow.PortOption{flow.ItemSize(itemSize)}
	}
	return nil
}

func inputs(n, itemSize int) []*flow.Port {
	ports := make([]*flow.Port, n)
	for i := range ports {
		ports[i] = flow.Untyped(fmt.Sprintf("in%d", i), flow.Input, portOptions(itemSize)...)
	}
	return ports
}

func outputs(n, itemSize int) []*flow.Port {
	ports := make([]*flow.Port, n)
	for i := range ports {
		ports[i] = flow.Untyped(fmt.Sprintf("out%d", i), flow.Output, portOptions(itemSize)...)
	}
	return ports
}

// copyItems copies n items of input to output.
func copyItems(out *flow.WorkOutput, in *flow.WorkInput, n int) {
	size := in.Port.ItemSize()
	copy(out.Items()[:n*size], in.Items()[:n*size])
}
