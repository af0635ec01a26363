package wav_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/run"
	"pipelined.dev/flow/vector"
	"pipelined.dev/flow/wav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sine returns interleaved stereo frames.
func sine(frames int) []float64 {
	data := make([]float64, 2*frames)
	for i := 0; i < frames; i++ {
		v := 0.5 * math.Sin(2*math.Pi*float64(i)/64)
		data[2*i], data[2*i+1] = v, -v
	}
	return data
}

func TestWriteRead(t *testing.T) {
	tests := []struct {
		bitDepth int
		delta    float64
	}{
		{bitDepth: 16, delta: 1e-4},
		{bitDepth: 24, delta: 1e-6},
		{bitDepth: 32, delta: 1e-8},
	}
	for _, test := range tests {
		path := filepath.Join(t.TempDir(), "out.wav")
		data := sine(1000)

		src := vector.NewSource(data, 2, false)
		sink, err := wav.NewSink(path, 44100, 2, test.bitDepth)
		require.NoError(t, err)
		fg := flow.NewFlowgraph("write")
		require.NoError(t, fg.Chain(src, sink))
		r, err := run.New(context.Background(), fg, run.WithBufferItems(128))
		require.NoError(t, err)
		require.NoError(t, r.Wait())

		source, err := wav.NewSource(path)
		require.NoError(t, err)
		assert.Equal(t, 44100, source.SampleRate())
		assert.Equal(t, 2, source.Channels())
		assert.Equal(t, test.bitDepth, source.BitDepth())
		assert.Equal(t, 16, source.Output("out").ItemSize())

		dst := vector.NewSink[float64](2)
		fg = flow.NewFlowgraph("read")
		require.NoError(t, fg.Chain(source, dst))
		r, err = run.New(context.Background(), fg, run.WithBufferItems(100))
		require.NoError(t, err)
		require.NoError(t, r.Wait())

		got := dst.Data()
		require.Len(t, got, len(data))
		assert.InDeltaSlice(t, data, got, test.delta)
		tags := dst.Tags()
		require.Len(t, tags, 1)
		v, _ := tags[0].Get(wav.SampleRateKey)
		assert.True(t, v.Equal(pmt.Float(44100)))
	}
}

func TestErrors(t *testing.T) {
	_, err := wav.NewSink(filepath.Join(t.TempDir(), "out.wav"), 44100, 2, 8)
	assert.ErrorIs(t, err, wav.ErrUnsupportedBitDepth)
	_, err = wav.NewSink(filepath.Join(t.TempDir(), "out.wav"), 0, 2, 16)
	assert.Error(t, err)
	_, err = wav.NewSource(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
