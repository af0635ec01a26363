// Package wav provides blocks that read and write wav files.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/multierr"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

// Tag keys added by Source at the first item.
const (
	SampleRateKey = "rx_rate"
	ChannelsKey   = "channels"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")

type (
	// Source reads interleaved frames from wav file. Every item is a frame
	// of float64 samples, one per channel.
	Source struct {
		*flow.Block
		path       string
		sampleRate int
		channels   int
		bitDepth   int

		file    *os.File
		decoder *wav.Decoder
		buf     *audio.IntBuffer
		sent    bool
	}

	// Sink writes interleaved frames to wav file.
	Sink struct {
		*flow.Block
		path       string
		sampleRate int
		channels   int
		bitDepth   int

		file    *os.File
		encoder *wav.Encoder
		buf     *audio.IntBuffer
	}
)

func validBitDepth(bd int) bool {
	return bd == 16 || bd == 24 || bd == 32
}

// NewSource checks the file and returns a source with output shaped by
// its number of channels. The file is opened when the flowgraph starts.
func NewSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav: %w", err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("wav is not valid: %s", path)
	}
	if !validBitDepth(int(d.BitDepth)) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, d.BitDepth)
	}
	s := &Source{
		path:       path,
		sampleRate: int(d.SampleRate),
		channels:   int(d.NumChans),
		bitDepth:   int(d.BitDepth),
	}
	s.Block = flow.NewBlock("wav_source", s,
		flow.Outputs(flow.Typed[float64]("out", flow.Output, flow.Shape(s.channels))),
	)
	return s, nil
}

// SampleRate returns sample rate of the file.
func (s *Source) SampleRate() int { return s.sampleRate }

// Channels returns number of channels of the file.
func (s *Source) Channels() int { return s.channels }

// BitDepth returns bit depth of the file.
func (s *Source) BitDepth() int { return s.bitDepth }

// Start opens the file and moves to PCM data.
func (s *Source) Start(context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open wav: %w", err)
	}
	d := wav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		return multierr.Append(fmt.Errorf("failed to read wav: %w", err), f.Close())
	}
	s.file, s.decoder, s.sent = f, d, false
	s.buf = &audio.IntBuffer{
		Format:         d.Format(),
		SourceBitDepth: s.bitDepth,
	}
	return nil
}

// Stop closes the file.
func (s *Source) Stop(context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.decoder = nil, nil
	return err
}

func (s *Source) Work(_ []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	size := out[0].NItems * s.channels
	if cap(s.buf.Data) < size {
		s.buf.Data = make([]int, size)
	}
	s.buf.Data = s.buf.Data[:size]
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return flow.WorkOK, fmt.Errorf("failed to read wav: %w", err)
	}
	frames := n / s.channels
	if frames == 0 {
		return flow.WorkDone, nil
	}
	if !s.sent {
		out[0].AddTag(out[0].ItemsWritten(), tag.Map{
			SampleRateKey: pmt.Float(float64(s.sampleRate)),
			ChannelsKey:   pmt.Int(int64(s.channels)),
		})
		s.sent = true
	}
	scale := float64(int64(1) << (s.bitDepth - 1))
	dst := flow.OutputItems[float64](out[0])
	for i, v := range s.buf.Data[:frames*s.channels] {
		dst[i] = float64(v) / scale
	}
	out[0].Produce(frames)
	return flow.WorkOK, nil
}

// NewSink returns a sink that writes frames of channels samples.
func NewSink(path string, sampleRate, channels, bitDepth int) (*Sink, error) {
	if !validBitDepth(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", channels, sampleRate)
	}
	s := &Sink{
		path:       path,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}
	s.Block = flow.NewBlock("wav_sink", s,
		flow.Inputs(flow.Typed[float64]("in", flow.Input, flow.Shape(channels))),
	)
	return s, nil
}

// Start creates the file.
func (s *Sink) Start(context.Context) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create wav: %w", err)
	}
	s.file = f
	s.encoder = wav.NewEncoder(f, s.sampleRate, s.bitDepth, s.channels, 1)
	s.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.channels,
			SampleRate:  s.sampleRate,
		},
		SourceBitDepth: s.bitDepth,
	}
	return nil
}

// Stop flushes encoder and closes the file.
func (s *Sink) Stop(context.Context) error {
	if s.file == nil {
		return nil
	}
	err := multierr.Append(s.encoder.Close(), s.file.Close())
	s.file, s.encoder = nil, nil
	return err
}

func (s *Sink) Work(in []*flow.WorkInput, _ []*flow.WorkOutput) (flow.WorkStatus, error) {
	src := flow.InputItems[float64](in[0])
	if cap(s.buf.Data) < len(src) {
		s.buf.Data = make([]int, len(src))
	}
	s.buf.Data = s.buf.Data[:len(src)]
	scale := float64(int64(1)<<(s.bitDepth-1)) - 1
	for i, v := range src {
		v = max(-1, min(1, v))
		s.buf.Data[i] = int(v * scale)
	}
	if err := s.encoder.Write(s.buf); err != nil {
		return flow.WorkOK, fmt.Errorf("failed to write wav: %w", err)
	}
	return flow.WorkOK, nil
}
