// Package vector provides blocks that stream slices in and out of a
// flowgraph.
package vector

import (
	"sync"

	"pipelined.dev/flow"
	"pipelined.dev/flow/tag"
)

// Source streams data. Tags are attached at offsets relative to data and
// are repeated with it.
type Source[T any] struct {
	*flow.Block
	data   []T
	tags   []tag.Tag
	repeat bool
	vlen   int
	pos    int
}

// NewSource returns source of data split into vectors of vlen elements.
// If repeat is set, data is streamed until the flowgraph is stopped.
func NewSource[T any](data []T, vlen int, repeat bool, tags ...tag.Tag) *Source[T] {
	if vlen < 1 {
		vlen = 1
	}
	if len(data)%vlen != 0 {
		panic("vector: data length is not a multiple of vlen")
	}
	s := &Source[T]{
		data:   data,
		tags:   tags,
		repeat: repeat,
		vlen:   vlen,
	}
	s.Block = flow.NewBlock("vector_source", s,
		flow.Outputs(flow.Typed[T]("out", flow.Output, flow.Shape(vlen))),
	)
	return s
}

// Rewind restarts the stream from the beginning.
func (s *Source[T]) Rewind() {
	s.pos = 0
}

func (s *Source[T]) Work(_ []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	items := len(s.data) / s.vlen
	if items == 0 || (!s.repeat && s.pos >= items) {
		return flow.WorkDone, nil
	}
	dst := flow.OutputItems[T](out[0])
	n := 0
	written := out[0].ItemsWritten()
	for n < out[0].NItems {
		if s.pos >= items {
			if !s.repeat {
				break
			}
			s.pos = 0
		}
		k := min(out[0].NItems-n, items-s.pos)
		copy(dst[n*s.vlen:(n+k)*s.vlen], s.data[s.pos*s.vlen:(s.pos+k)*s.vlen])
		for _, tg := range s.tags {
			if tg.Offset >= uint64(s.pos) && tg.Offset < uint64(s.pos+k) {
				out[0].AddTag(written+uint64(n)+tg.Offset-uint64(s.pos), tg.Map.Clone())
			}
		}
		n += k
		s.pos += k
	}
	out[0].Produce(n)
	if !s.repeat && s.pos >= items {
		return flow.WorkDone, nil
	}
	return flow.WorkOK, nil
}

// Sink accumulates streamed items and tags.
type Sink[T any] struct {
	*flow.Block
	vlen int

	mu   sync.Mutex
	data []T
	tags []tag.Tag
}

// NewSink returns sink of vectors of vlen elements.
func NewSink[T any](vlen int) *Sink[T] {
	if vlen < 1 {
		vlen = 1
	}
	s := &Sink[T]{vlen: vlen}
	s.Block = flow.NewBlock("vector_sink", s,
		flow.Inputs(flow.Typed[T]("in", flow.Input, flow.Shape(vlen))),
	)
	return s
}

// Data returns received elements.
func (s *Sink[T]) Data() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.data...)
}

// Tags returns received tags.
func (s *Sink[T]) Tags() []tag.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tag.Tag(nil), s.tags...)
}

// Reset clears received data.
func (s *Sink[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.tags = nil, nil
}

func (s *Sink[T]) Work(in []*flow.WorkInput, _ []*flow.WorkOutput) (flow.WorkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, flow.InputItems[T](in[0])...)
	s.tags = append(s.tags, in[0].Tags()...)
	return flow.WorkOK, nil
}
