package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow"
	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/log"
	"pipelined.dev/flow/metric"
	"pipelined.dev/flow/mock"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/run/internal/runtime"
)

var errTest = errors.New("test error")

// scheduler connects blocks in a chain, binds buffers of capacity items and
// returns a scheduler of all blocks.
func scheduler(t *testing.T, items int, c clock.Clock, blocks ...*flow.Block) (*runtime.Scheduler, *prometheus.Registry) {
	t.Helper()
	g := flow.NewGraph()
	nodes := make([]flow.Node, len(blocks))
	for i := range blocks {
		nodes[i] = blocks[i]
	}
	require.NoError(t, g.Chain(nodes...))
	require.NoError(t, g.CheckConnections())
	for _, b := range g.UsedBlocks() {
		for _, p := range b.StreamOutputs() {
			p.Bind(buffer.New(items, p.ItemSize()))
			for _, peer := range g.Peers(p) {
				peer.BindReader(p.Buffer().AddReader())
			}
		}
	}
	reg := prometheus.NewRegistry()
	m, err := metric.New("test", reg)
	require.NoError(t, err)
	return runtime.New(runtime.Config{
		Name:    "test",
		Blocks:  g.TopologicalOrder(g.UsedBlocks()),
		Graph:   g,
		Clock:   c,
		Logger:  log.Discard(),
		Metrics: m,
	}), reg
}

// counter returns the sum of all series of the counter.
func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestSchedulerRun(t *testing.T) {
	source := &mock.Source{Limit: 1000, Value: 0.5}
	proc := &mock.Processor{}
	sink := &mock.Sink{}
	src, p, dst := source.Block(), proc.Block(), sink.Block()
	s, reg := scheduler(t, 64, nil, src, p, dst)

	err := s.Run(context.Background())
	assertNil(t, "error", err)
	assertEqual(t, "produced", counter(t, reg, "test_block_items_produced_total"), 2000.0)
	assertEqual(t, "consumed", counter(t, reg, "test_block_items_consumed_total"), 2000.0)
	assertEqual(t, "source samples", source.Samples, 1000)
	assertEqual(t, "processor samples", proc.Samples, 1000)
	assertEqual(t, "sink samples", sink.Samples, 1000)
	assertEqual(t, "sink value", sink.Values()[999], 0.5)
	assertEqual(t, "started", sink.Started, true)
	assertEqual(t, "stopped", sink.Stopped, true)
	for _, b := range []*flow.Block{src, p, dst} {
		assertEqual(t, b.Name()+" state", b.State(), flow.Done)
		assertEqual(t, b.Name()+" scheduler", b.Scheduler(), nil)
	}
}

func TestSchedulerSinkLimit(t *testing.T) {
	source := &mock.Source{Limit: 1 << 30}
	sink := &mock.Sink{Limit: 100, Discard: true}
	src := source.Block()
	s, _ := scheduler(t, 16, nil, src, sink.Block())

	err := s.Run(context.Background())
	assertNil(t, "error", err)
	assertEqual(t, "sink samples", sink.Samples, 100)
	// source is done once nobody reads its output
	assertEqual(t, "source state", src.State(), flow.Done)
	assert.Less(t, source.Samples, 1<<30)
}

func TestSchedulerWorkError(t *testing.T) {
	source := &mock.Source{Limit: 100}
	proc := &mock.Processor{ErrorOnCall: errTest}
	sink := &mock.Sink{}
	s, _ := scheduler(t, 16, nil, source.Block(), proc.Block(), sink.Block())

	err := s.Run(context.Background())
	assertEqual(t, "error", errors.Is(err, errTest), true)
	var be *runtime.BlockError
	require.True(t, errors.As(err, &be))
	assert.Contains(t, be.Block, "mock_processor")
	assertEqual(t, "stopped", sink.Stopped, true)
}

func TestSchedulerStartError(t *testing.T) {
	source := &mock.Source{Limit: 100}
	sink := &mock.Sink{}
	sink.ErrorOnStart = errTest
	s, _ := scheduler(t, 16, nil, source.Block(), sink.Block())

	err := s.Run(context.Background())
	assertEqual(t, "error", errors.Is(err, errTest), true)
	assertEqual(t, "source stopped", source.Stopped, true)
	assertEqual(t, "sink stopped", sink.Stopped, false)
	assertEqual(t, "source samples", source.Samples, 0)
}

func TestSchedulerStopErrors(t *testing.T) {
	source := &mock.Source{Limit: 10}
	sink := &mock.Sink{}
	source.ErrorOnStop = errTest
	sink.ErrorOnStop = errTest
	s, _ := scheduler(t, 16, nil, source.Block(), sink.Block())

	err := s.Run(context.Background())
	assertEqual(t, "error", errors.Is(err, errTest), true)
	assertEqual(t, "sink samples", sink.Samples, 10)
}

func TestSchedulerParams(t *testing.T) {
	source := &mock.Source{Limit: 1 << 40, Burst: 1}
	sink := &mock.Sink{Discard: true}
	src := source.Block()
	src.AddParam("gain", pmt.Float(1))
	s, _ := scheduler(t, 16, nil, src, sink.Block())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		s := src.State()
		return s == flow.Running || s == flow.Waiting
	}, time.Second, time.Millisecond)

	reqCtx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, src.RequestParameterChange(reqCtx, "gain", pmt.Float(float64(i)), true))
		v, err := src.RequestParameterQuery(reqCtx, "gain")
		require.NoError(t, err)
		assert.True(t, v.Equal(pmt.Float(float64(i))))
	}
	assert.ErrorIs(t, src.RequestParameterChange(reqCtx, "missing", pmt.Int(1), true), flow.ErrUnknownParam)

	notFound := make(chan error, 1)
	s.Post(flow.ParamQuery{Block: 1000, Name: "gain", Done: func(_ pmt.Value, err error) {
		notFound <- err
	}})
	assert.ErrorIs(t, <-notFound, flow.ErrBlockNotFound)

	cancel()
	assertEqual(t, "error", errors.Is(<-errc, context.Canceled), true)

	// messages after exit are not applied
	late := make(chan error, 1)
	s.Post(flow.ParamChange{Block: src.ID(), Name: "gain", Value: pmt.Float(0), Done: func(err error) {
		late <- err
	}})
	assert.ErrorIs(t, <-late, flow.ErrNotApplied)
	// unbound block applies changes inline
	require.NoError(t, src.RequestParameterChange(reqCtx, "gain", pmt.Float(-1), true))
}

func TestSchedulerUnknownBlock(t *testing.T) {
	source := &mock.Source{Limit: 10}
	sink := &mock.Sink{}
	s, _ := scheduler(t, 16, nil, source.Block(), sink.Block())

	queried := make(chan error, 1)
	changed := make(chan error, 1)
	s.Post(flow.ParamQuery{Block: 42, Name: "gain", Done: func(v pmt.Value, err error) {
		assertEqual(t, "value", v.IsNull(), true)
		queried <- err
	}})
	s.Post(flow.ParamChange{Block: 42, Name: "gain", Value: pmt.Float(1), Done: func(err error) {
		changed <- err
	}})
	assertNil(t, "error", s.Run(context.Background()))
	assert.ErrorIs(t, <-queried, flow.ErrBlockNotFound)
	assert.ErrorIs(t, <-changed, flow.ErrBlockNotFound)
	assertEqual(t, "sink samples", sink.Samples, 10)
}

func TestSchedulerWake(t *testing.T) {
	c := clock.NewFake()
	source := &mock.Source{Limit: 30, Burst: 10, Interval: time.Second}
	sink := &mock.Sink{}
	src := source.Block()
	s, reg := scheduler(t, 64, c, src, sink.Block())

	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(context.Background())
	}()
	for {
		select {
		case err := <-errc:
			assertNil(t, "error", err)
			assertEqual(t, "sink samples", sink.Samples, 30)
			assertEqual(t, "sink messages", sink.Messages, 3)
			assert.GreaterOrEqual(t, counter(t, reg, "test_scheduler_timer_wakes_total"), 2.0)
			return
		case <-time.After(time.Millisecond):
			c.Advance(time.Second)
		}
	}
}

func TestSchedulerFinish(t *testing.T) {
	source := &mock.Source{Limit: 1 << 40, Burst: 1}
	sink := &mock.Sink{Discard: true}
	src := source.Block()
	s, _ := scheduler(t, 16, nil, src, sink.Block())

	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(context.Background())
	}()
	require.Eventually(t, func() bool {
		s := src.State()
		return s == flow.Running || s == flow.Waiting
	}, time.Second, time.Millisecond)
	src.Input(flow.SystemPort).Post(pmt.String("done"))
	assertNil(t, "error", <-errc)
	assertEqual(t, "state", src.State(), flow.Done)
}
