// Package mock provides mocks for flowgraph blocks and allows to execute
// integration tests.
package mock

import (
	"context"
	"sync"
	"time"

	"pipelined.dev/flow"
)

// Source mocks a block that produces Limit items of Value.
type Source struct {
	Counter
	Hooks
	Limit int
	Value float64
	// Burst limits the number of items produced per work call.
	Burst int
	// Interval makes source produce one burst per interval of the
	// scheduler clock.
	Interval time.Duration
	// Delay postpones the first item.
	Delay       time.Duration
	ErrorOnCall error

	block *flow.Block
	next  time.Time
}

// Block returns the source block with a single float64 output "out".
func (m *Source) Block() *flow.Block {
	m.block = flow.NewBlock("mock_source", m,
		flow.Outputs(flow.Typed[float64]("out", flow.Output)),
	)
	return m.block
}

// Work fills the output with Value until Limit is reached.
func (m *Source) Work(_ []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	if m.ErrorOnCall != nil {
		return flow.WorkOK, m.ErrorOnCall
	}
	if m.Samples >= m.Limit {
		return flow.WorkDone, nil
	}
	if m.Interval > 0 || m.Delay > 0 {
		now := m.block.Now()
		if m.next.IsZero() && m.Delay > 0 {
			m.next = now.Add(m.Delay)
		}
		if now.Before(m.next) {
			m.block.WakeAfter(m.next.Sub(now))
			return flow.WorkOK, nil
		}
		m.next = now.Add(m.Interval)
	}

	items := flow.OutputItems[float64](out[0])
	n := min(len(items), m.Limit-m.Samples)
	if m.Burst > 0 {
		n = min(n, m.Burst)
	}
	for i := range items[:n] {
		items[i] = m.Value
	}
	out[0].Produce(n)
	m.advance(n)
	if m.Samples >= m.Limit {
		return flow.WorkDone, nil
	}
	return flow.WorkOK, nil
}

// Processor mocks a block that copies float64 items.
type Processor struct {
	Counter
	Hooks
	ErrorOnCall error
}

// Block returns the processor block with float64 ports "in" and "out".
func (m *Processor) Block() *flow.Block {
	return flow.NewBlock("mock_processor", m,
		flow.Inputs(flow.Typed[float64]("in", flow.Input)),
		flow.Outputs(flow.Typed[float64]("out", flow.Output)),
	)
}

// Work copies input to output.
func (m *Processor) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	if m.ErrorOnCall != nil {
		return flow.WorkOK, m.ErrorOnCall
	}
	n := copy(flow.OutputItems[float64](out[0]), flow.InputItems[float64](in[0]))
	out[0].Produce(n)
	m.advance(n)
	return flow.WorkOK, nil
}

// Adder mocks a block that sums two float64 streams item by item.
type Adder struct {
	Counter
	Hooks
	ErrorOnCall error
}

// Block returns the adder block with float64 inputs "in0", "in1" and
// output "out".
func (m *Adder) Block() *flow.Block {
	return flow.NewBlock("mock_adder", m,
		flow.Inputs(
			flow.Typed[float64]("in0", flow.Input),
			flow.Typed[float64]("in1", flow.Input),
		),
		flow.Outputs(flow.Typed[float64]("out", flow.Output)),
	)
}

// Work adds inputs into output.
func (m *Adder) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	if m.ErrorOnCall != nil {
		return flow.WorkOK, m.ErrorOnCall
	}
	a, b := flow.InputItems[float64](in[0]), flow.InputItems[float64](in[1])
	dst := flow.OutputItems[float64](out[0])
	n := flow.MinItems(in, out)
	for i := range dst[:n] {
		dst[i] = a[i] + b[i]
	}
	out[0].Produce(n)
	m.advance(n)
	return flow.WorkOK, nil
}

// Sink mocks a block that accumulates float64 items. Values must not be
// checked while the flowgraph is running.
type Sink struct {
	Counter
	Hooks
	Discard bool
	// Limit makes sink finish after it received Limit items.
	Limit       int
	ErrorOnCall error
	values      []float64
}

// Block returns the sink block with a single float64 input "in".
func (m *Sink) Block() *flow.Block {
	return flow.NewBlock("mock_sink", m,
		flow.Inputs(flow.Typed[float64]("in", flow.Input)),
	)
}

// Work consumes all offered items.
func (m *Sink) Work(in []*flow.WorkInput, _ []*flow.WorkOutput) (flow.WorkStatus, error) {
	if m.ErrorOnCall != nil {
		return flow.WorkOK, m.ErrorOnCall
	}
	items := flow.InputItems[float64](in[0])
	if m.Limit > 0 {
		items = items[:min(len(items), m.Limit-m.Samples)]
	}
	if !m.Discard {
		m.values = append(m.values, items...)
	}
	in[0].Consume(len(items))
	m.advance(len(items))
	if m.Limit > 0 && m.Samples >= m.Limit {
		return flow.WorkDone, nil
	}
	return flow.WorkOK, nil
}

// Values returns received items.
func (m *Sink) Values() []float64 {
	return m.values
}

// Hooks allows to mock block hooks.
type Hooks struct {
	mu      sync.Mutex
	Started bool
	Stopped bool

	ErrorOnStart error
	ErrorOnStop  error
}

// Start implements flow.Starter.
func (h *Hooks) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Started = true
	return h.ErrorOnStart
}

// Stop implements flow.Stopper.
func (h *Hooks) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Stopped = true
	return h.ErrorOnStop
}

// Counter counts work calls with items and processed items.
type Counter struct {
	Messages int
	Samples  int
}

func (c *Counter) advance(size int) {
	if size == 0 {
		return
	}
	c.Messages++
	c.Samples += size
}

// Reset resets counter's metrics.
func (c *Counter) Reset() {
	c.Messages, c.Samples = 0, 0
}
