package runtime

import (
	"fmt"
	"math"
	"time"

	"pipelined.dev/flow"
	"pipelined.dev/flow/metric"
	"pipelined.dev/flow/tag"
)

type (
	// Executor executes work of a single block against its bound buffers.
	Executor struct {
		Block      *flow.Block
		inputs     []*flow.Port
		outputs    []*flow.Port
		upstream   []*flow.Block
		downstream [][]*flow.Block
		measure    metric.MeasureFunc
		done       bool
	}

	// Result describes the outcome of a single execution.
	Result struct {
		// Progress is true if any item was consumed or produced.
		Progress bool
		// Done is true if the block will never be executed again.
		Done bool
		// OutputBlocked is true if work was skipped because there is no
		// space in outputs.
		OutputBlocked bool
		// Exhausted is true if no progress was made and at least one input
		// will never receive more items.
		Exhausted bool
	}

	// BlockError is returned when work of a block fails.
	BlockError struct {
		Block string
		Err   error
	}
)

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s: %v", e.Block, e.Err)
}

// Unwrap returns the cause.
func (e *BlockError) Unwrap() error {
	return e.Err
}

// NewExecutor returns executor for block. Neighbour blocks are resolved
// from graph connections.
func NewExecutor(b *flow.Block, g *flow.Graph, m *metric.Metrics) *Executor {
	e := &Executor{
		Block:   b,
		inputs:  b.StreamInputs(),
		outputs: b.StreamOutputs(),
	}
	inNames := make([]string, len(e.inputs))
	for i, p := range e.inputs {
		inNames[i] = p.Name()
		var writer *flow.Block
		if peers := g.Peers(p); len(peers) > 0 {
			writer = peers[0].Block()
		}
		e.upstream = append(e.upstream, writer)
	}
	outNames := make([]string, len(e.outputs))
	for i, p := range e.outputs {
		outNames[i] = p.Name()
		var readers []*flow.Block
		for _, peer := range g.Peers(p) {
			readers = append(readers, peer.Block())
		}
		e.downstream = append(e.downstream, readers)
	}
	e.measure = m.Meter(b.Alias(), inNames, outNames)
	return e
}

// Streaming reports if the block has stream ports and needs work calls.
func (e *Executor) Streaming() bool {
	return len(e.inputs) > 0 || len(e.outputs) > 0
}

// Done reports if the block has finished.
func (e *Executor) Done() bool {
	return e.done
}

// Execute computes input and output windows, calls work and applies its
// result to buffers. Work is not called when any window is empty.
func (e *Executor) Execute() (Result, error) {
	b := e.Block
	if e.done {
		return Result{Done: true}, nil
	}
	if b.Finished() || e.downstreamGone() {
		e.Finish()
		return Result{Done: true}, nil
	}

	// writer state must be captured before availability, otherwise items
	// committed right before the end of stream could be missed
	writerDone := make([]bool, len(e.inputs))
	for i, p := range e.inputs {
		if p.Reader() != nil {
			writerDone[i] = p.Reader().WriterDone()
		}
	}

	om, rr := b.OutputMultiple(), b.RelativeRate()
	nout := -1
	for _, p := range e.outputs {
		n := p.Buffer().SpaceAvailable()
		n -= n % om
		if nout < 0 || n < nout {
			nout = n
		}
	}
	if nout == 0 {
		return Result{OutputBlocked: true}, nil
	}

	in := make([]*flow.WorkInput, len(e.inputs))
	available := make([]int, len(e.inputs))
	nin := -1
	for i, p := range e.inputs {
		// unconnected optional input
		if p.Reader() == nil {
			in[i] = flow.NewWorkInput(p, 0)
			continue
		}
		n := p.Reader().ItemsAvailable()
		available[i] = n
		if len(e.outputs) == 0 {
			n -= n % om
		}
		in[i] = flow.NewWorkInput(p, n)
		if nin < 0 || n < nin {
			nin = n
		}
	}
	// synchronous blocks get equal windows
	if rr == 1 && nin >= 0 && nout >= 0 {
		n := min(nin, nout)
		n -= n % om
		for i := range in {
			if in[i].Port.Reader() != nil {
				in[i].NItems = n
			}
		}
		nin, nout = n, n
	}
	if nin == 0 {
		return Result{Exhausted: e.starved(writerDone, available)}, nil
	}

	out := make([]*flow.WorkOutput, len(e.outputs))
	for i, p := range e.outputs {
		out[i] = flow.NewWorkOutput(p, nout)
	}

	start := time.Now()
	status, err := b.Kernel().Work(in, out)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, &BlockError{Block: b.Alias(), Err: err}
	}
	switch status {
	case flow.WorkOK, flow.WorkDone:
	default:
		// insufficiency discards counts, block waits for notification
		return Result{Exhausted: e.allDone(writerDone)}, nil
	}

	produced, consumed, err := e.counts(in, out)
	if err != nil {
		return Result{}, &BlockError{Block: b.Alias(), Err: err}
	}
	if err := e.commit(in, out, consumed, produced); err != nil {
		return Result{}, &BlockError{Block: b.Alias(), Err: err}
	}
	e.measure(elapsed, consumed, produced)

	progress := false
	for i := range out {
		if produced[i] > 0 {
			progress = true
			notify(e.downstream[i], flow.NotifyInput)
		}
	}
	for i := range in {
		if consumed[i] > 0 {
			progress = true
			notify([]*flow.Block{e.upstream[i]}, flow.NotifyOutput)
		}
	}

	if status == flow.WorkDone {
		e.Finish()
		return Result{Progress: progress, Done: true}, nil
	}
	return Result{Progress: progress, Exhausted: !progress && e.allDone(writerDone)}, nil
}

// starved reports if an empty window can never grow: some input with a
// finished writer holds fewer items than the smallest window needs.
// Inputs of live writers keep the block waiting even when other inputs
// have ended.
func (e *Executor) starved(writerDone []bool, available []int) bool {
	need := 1
	if e.Block.RelativeRate() == 1 || len(e.outputs) == 0 {
		need = e.Block.OutputMultiple()
	}
	for i, p := range e.inputs {
		if p.Reader() != nil && writerDone[i] && available[i] < need {
			return true
		}
	}
	return false
}

// allDone reports if every connected input has a finished writer.
func (e *Executor) allDone(writerDone []bool) bool {
	connected := false
	for i, p := range e.inputs {
		if p.Reader() == nil {
			continue
		}
		if !writerDone[i] {
			return false
		}
		connected = true
	}
	return connected
}

// counts validates produced items and resolves consumed items. Inputs
// without explicit consumption consume produced items scaled by relative
// rate, sinks consume the whole window.
func (e *Executor) counts(in []*flow.WorkInput, out []*flow.WorkOutput) ([]int, []int, error) {
	produced := make([]int, len(out))
	minProduced := -1
	for i := range out {
		n := out[i].NProduced
		if n < 0 || n > out[i].NItems {
			return nil, nil, fmt.Errorf("output %s: produced %d of %d items", out[i].Port.Name(), n, out[i].NItems)
		}
		produced[i] = n
		if minProduced < 0 || n < minProduced {
			minProduced = n
		}
	}

	consumed := make([]int, len(in))
	for i := range in {
		n, explicit := in[i].Consumed()
		if !explicit {
			if len(out) > 0 {
				n = int(math.Round(float64(minProduced) / e.Block.RelativeRate()))
				n = min(n, in[i].NItems)
			} else {
				n = in[i].NItems
			}
		}
		if n < 0 || n > in[i].NItems {
			return nil, nil, fmt.Errorf("input %s: consumed %d of %d items", in[i].Port.Name(), n, in[i].NItems)
		}
		consumed[i] = n
	}
	return produced, consumed, nil
}

// commit propagates tags of consumed items, commits staged tags and then
// advances buffers.
func (e *Executor) commit(in []*flow.WorkInput, out []*flow.WorkOutput, consumed, produced []int) error {
	policy, rr := e.Block.TagPolicy(), e.Block.RelativeRate()
	if policy != tag.DontPropagate && len(out) > 0 {
		for i := range in {
			if consumed[i] == 0 {
				continue
			}
			tags := in[i].TagsInRange(0, consumed[i])
			if len(tags) == 0 {
				continue
			}
			if rr != 1 {
				for j := range tags {
					tags[j].Offset = uint64(math.Round(float64(tags[j].Offset) * rr))
				}
			}
			switch policy {
			case tag.AllToAll:
				for o := range out {
					out[o].Port.Buffer().AddTags(tags...)
				}
			case tag.OneToOne:
				if i < len(out) {
					out[i].Port.Buffer().AddTags(tags...)
				}
			}
		}
	}
	for i := range out {
		if staged := out[i].Tags(); len(staged) > 0 {
			out[i].Port.Buffer().AddTags(staged...)
		}
		if err := out[i].Port.Buffer().PostWrite(produced[i]); err != nil {
			return err
		}
	}
	for i := range in {
		if in[i].Port.Reader() == nil {
			continue
		}
		if err := in[i].Port.Reader().PostRead(consumed[i]); err != nil {
			return err
		}
	}
	return nil
}

// Finish marks outputs as ended, detaches inputs and notifies neighbours.
// Downstream blocks drain remaining items before they finish.
func (e *Executor) Finish() {
	if e.done {
		return
	}
	e.done = true
	for _, p := range e.outputs {
		p.Buffer().SetDone()
	}
	for _, p := range e.inputs {
		if r := p.Reader(); r != nil {
			r.Buffer().RemoveReader(r)
		}
	}
	e.Block.SetState(flow.Done)
	for i := range e.downstream {
		notify(e.downstream[i], flow.NotifyInput)
	}
	notify(e.upstream, flow.NotifyOutput)
	e.Block.Logger().Debug("done")
}

// downstreamGone reports if every connected output lost all its readers.
func (e *Executor) downstreamGone() bool {
	connected := false
	for i, p := range e.outputs {
		if len(e.downstream[i]) == 0 {
			continue
		}
		connected = true
		if p.Buffer().Readers() > 0 {
			return false
		}
	}
	return connected
}

func notify(blocks []*flow.Block, a flow.Action) {
	for _, b := range blocks {
		if b != nil {
			b.NotifyScheduler(a)
		}
	}
}
