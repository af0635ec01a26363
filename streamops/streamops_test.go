package streamops_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/flow"
	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/run"
	"pipelined.dev/flow/streamops"
	"pipelined.dev/flow/tag"
	"pipelined.dev/flow/vector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sequence(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

func TestDeinterleave(t *testing.T) {
	tests := []struct {
		nstreams  int
		blocksize int
	}{
		{nstreams: 3, blocksize: 1},
		{nstreams: 3, blocksize: 4},
		{nstreams: 2, blocksize: 6},
	}
	for _, test := range tests {
		data := sequence(36)
		src := vector.NewSource(data, 1, false)
		d := streamops.Deinterleave(test.nstreams, test.blocksize, 0)
		sinks := make([]*vector.Sink[float32], test.nstreams)
		fg := flow.NewFlowgraph("deinterleave")
		_, err := fg.Connect(src.Output("out"), d.Input("in0"))
		require.NoError(t, err)
		for i := range sinks {
			sinks[i] = vector.NewSink[float32](1)
			_, err := fg.Connect(d.StreamOutputs()[i], sinks[i].Input("in"))
			require.NoError(t, err)
		}

		r, err := run.New(context.Background(), fg, run.WithBufferItems(8))
		require.NoError(t, err)
		require.NoError(t, r.Wait())
		assert.Equal(t, 4, d.StreamOutputs()[0].ItemSize())

		for i, s := range sinks {
			var expected []float32
			for j := i * test.blocksize; j < len(data); j += test.nstreams * test.blocksize {
				expected = append(expected, data[j:j+test.blocksize]...)
			}
			assert.Equal(t, expected, s.Data(), "stream %d", i)
			assert.Len(t, s.Data(), 36/test.nstreams)
		}
	}
}

func TestHead(t *testing.T) {
	src := vector.NewSource(sequence(10), 1, true)
	head := streamops.Head(0, 25)
	dst := vector.NewSink[float32](1)
	fg := flow.NewFlowgraph("head")
	require.NoError(t, fg.Chain(src, head, dst))

	r, err := run.New(context.Background(), fg, run.WithBufferItems(4))
	require.NoError(t, err)
	require.NoError(t, r.Wait())
	got := dst.Data()
	require.Len(t, got, 25)
	assert.Equal(t, float32(4), got[24])
	assert.Equal(t, flow.Done, src.State())
}

func TestCopy(t *testing.T) {
	src := vector.NewSource(sequence(100), 1, false)
	cp := streamops.Copy(4)
	dst := vector.NewSink[float32](1)
	fg := flow.NewFlowgraph("copy")
	require.NoError(t, fg.Chain(src, cp, dst))

	require.Error(t, cp.RequestParameterChange(context.Background(), streamops.Enabled, pmt.Int(1), true))
	require.NoError(t, cp.RequestParameterChange(context.Background(), streamops.Enabled, pmt.Bool(false), true))
	r, err := run.New(context.Background(), fg)
	require.NoError(t, err)
	require.NoError(t, r.Wait())
	assert.Empty(t, dst.Data())

	src.Rewind()
	require.NoError(t, cp.RequestParameterChange(context.Background(), streamops.Enabled, pmt.Bool(true), true))
	r, err = run.New(context.Background(), fg)
	require.NoError(t, err)
	require.NoError(t, r.Wait())
	assert.Equal(t, sequence(100), dst.Data())
}

func TestMultiplyConst(t *testing.T) {
	src := vector.NewSource([]complex64{1, 1i, 2, 2i}, 2, false)
	mul := streamops.MultiplyConst[complex64](2, 2)
	dst := vector.NewSink[complex64](2)
	fg := flow.NewFlowgraph("multiply")
	require.NoError(t, fg.Chain(src, mul, dst))

	ctx := context.Background()
	require.NoError(t, mul.RequestParameterChange(ctx, streamops.K, pmt.Complex(1i), true))
	assert.Error(t, mul.RequestParameterChange(ctx, streamops.K, pmt.String("x"), true))
	r, err := run.New(ctx, fg)
	require.NoError(t, err)
	require.NoError(t, r.Wait())
	assert.Equal(t, []complex64{1i, -1, 2i, -2}, dst.Data())
}

func TestAnnotator(t *testing.T) {
	tests := []struct {
		policy tag.Policy
		nin    int
		nout   int
		// tags of the first annotator that reach the last one
		expected int
	}{
		{policy: tag.AllToAll, nin: 2, nout: 2, expected: 40},
		{policy: tag.OneToOne, nin: 2, nout: 2, expected: 20},
		{policy: tag.DontPropagate, nin: 2, nout: 2, expected: 0},
		{policy: tag.OneToOne, nin: 1, nout: 2, expected: 20},
	}
	for _, test := range tests {
		t.Run(test.policy.String(), func(t *testing.T) {
			fg := flow.NewFlowgraph("annotator")
			first := streamops.NewAnnotator(0, 10, test.nin, test.nout, tag.AllToAll)
			second := streamops.NewAnnotator(0, 1000, test.nout, test.nout, test.policy)
			last := streamops.NewAnnotator(0, 1000, test.nout, 0, test.policy)
			for i := 0; i < test.nin; i++ {
				src := vector.NewSource(sequence(100), 1, false)
				_, err := fg.Connect(src.Output("out"), first.StreamInputs()[i])
				require.NoError(t, err)
			}
			for i := 0; i < test.nout; i++ {
				_, err := fg.Connect(first.StreamOutputs()[i], second.StreamInputs()[i])
				require.NoError(t, err)
				_, err = fg.Connect(second.StreamOutputs()[i], last.StreamInputs()[i])
				require.NoError(t, err)
			}

			r, err := run.New(context.Background(), fg, run.WithBufferItems(32))
			require.NoError(t, err)
			require.NoError(t, r.Wait())

			// every output of the first annotator is tagged at 0, 10, ...
			assert.Len(t, second.Tags(), 10*test.nout)
			counts := map[string]int{}
			for _, tg := range last.Tags() {
				v, ok := tg.Get("srcid")
				require.True(t, ok)
				id, _ := v.Str()
				counts[id]++
			}
			assert.Equal(t, test.expected, counts[first.Alias()])
			// tags of the second annotator are added to each output
			assert.Equal(t, test.nout, counts[second.Alias()])
		})
	}
}

func TestThrottle(t *testing.T) {
	c := clock.NewFake()
	start := c.Now()
	src := vector.NewSource(sequence(10), 1, true)
	th := streamops.Throttle(0, 100, false)
	head := streamops.Head(0, 50)
	dst := vector.NewSink[float32](1)
	fg := flow.NewFlowgraph("throttle")
	require.NoError(t, fg.Chain(src, th, head, dst))

	r, err := run.New(context.Background(), fg, run.WithClock(c), run.WithBufferItems(16))
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() {
		errc <- r.Wait()
	}()
	for done := false; !done; {
		select {
		case err := <-errc:
			require.NoError(t, err)
			done = true
		case <-time.After(time.Millisecond):
			c.Advance(10 * time.Millisecond)
		}
	}
	assert.Len(t, dst.Data(), 50)
	// burst of 10 items is available immediately, the rest needs 400ms
	assert.GreaterOrEqual(t, c.Now().Sub(start), 400*time.Millisecond)
}

func TestThrottleParams(t *testing.T) {
	th := streamops.Throttle(4, 100, true)
	ctx := context.Background()
	assert.Error(t, th.RequestParameterChange(ctx, streamops.SamplesPerSecond, pmt.Float(-1), true))
	assert.Error(t, th.RequestParameterChange(ctx, streamops.SamplesPerSecond, pmt.String("fast"), true))
	require.NoError(t, th.RequestParameterChange(ctx, streamops.SamplesPerSecond, pmt.Float(1000), true))
	v, err := th.RequestParameterQuery(ctx, streamops.SamplesPerSecond)
	require.NoError(t, err)
	assert.True(t, v.Equal(pmt.Float(1000)))
	_, err = th.RequestParameterQuery(ctx, "missing")
	assert.True(t, errors.Is(err, flow.ErrUnknownParam))
}

func TestThrottleRxRate(t *testing.T) {
	c := clock.NewFake()
	src := vector.NewSource(sequence(10), 1, true, tag.New(0, tag.Map{streamops.RxRate: pmt.Float(1000)}))
	th := streamops.Throttle(0, 10, false)
	head := streamops.Head(0, 100)
	dst := vector.NewSink[float32](1)
	fg := flow.NewFlowgraph("throttle")
	require.NoError(t, fg.Chain(src, th, head, dst))

	r, err := run.New(context.Background(), fg, run.WithClock(c), run.WithBufferItems(16))
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() {
		errc <- r.Wait()
	}()
	for done := false; !done; {
		select {
		case err := <-errc:
			require.NoError(t, err)
			done = true
		case <-time.After(time.Millisecond):
			c.Advance(10 * time.Millisecond)
		}
	}
	v, _ := th.Param(streamops.SamplesPerSecond)
	assert.True(t, v.Equal(pmt.Float(1000)))
}
