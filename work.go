package flow

import (
	"fmt"
	"unsafe"

	"pipelined.dev/flow/tag"
)

// WorkStatus is returned by kernel work.
type WorkStatus uint8

// Work statuses.
const (
	// WorkOK means consumed and produced counts must be applied.
	WorkOK WorkStatus = iota
	// WorkDone means the block will never produce again.
	WorkDone
	// WorkInsufficientInput means the block needs more input items.
	WorkInsufficientInput
	// WorkInsufficientOutput means the block needs more output space.
	WorkInsufficientOutput
)

func (s WorkStatus) String() string {
	switch s {
	case WorkOK:
		return "ok"
	case WorkDone:
		return "done"
	case WorkInsufficientInput:
		return "insufficient input"
	case WorkInsufficientOutput:
		return "insufficient output"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// WorkInput is a window of unread items of stream input.
type WorkInput struct {
	Port     *Port
	NItems   int
	consumed int
	explicit bool
}

// NewWorkInput returns input window of n items.
func NewWorkInput(p *Port, n int) *WorkInput {
	return &WorkInput{Port: p, NItems: n}
}

// Items returns raw bytes of the window.
func (in *WorkInput) Items() []byte {
	if in.NItems == 0 {
		return nil
	}
	return in.Port.reader.ReadPtr(0)[:in.NItems*in.Port.itemSize]
}

// Consume sets the number of items consumed by the work call. Inputs
// without explicit consumption are consumed according to produced items
// and relative rate.
func (in *WorkInput) Consume(n int) {
	in.consumed = n
	in.explicit = true
}

// Consumed returns explicitly consumed items and whether Consume was called.
func (in *WorkInput) Consumed() (int, bool) {
	return in.consumed, in.explicit
}

// ItemsRead returns absolute offset of the first item in the window.
func (in *WorkInput) ItemsRead() uint64 {
	if in.Port.reader == nil {
		return 0
	}
	return in.Port.reader.ItemsRead()
}

// Tags returns tags within the window.
func (in *WorkInput) Tags() []tag.Tag {
	return in.TagsInRange(0, in.NItems)
}

// TagsInRange returns tags of n items starting start items into the window.
func (in *WorkInput) TagsInRange(start, n int) []tag.Tag {
	if in.Port.reader == nil {
		return nil
	}
	return in.Port.reader.TagsInWindow(start, n)
}

// WorkOutput is a window of free slots of stream output.
type WorkOutput struct {
	Port      *Port
	NItems    int
	NProduced int
	tags      []tag.Tag
}

// NewWorkOutput returns output window of n items.
func NewWorkOutput(p *Port, n int) *WorkOutput {
	return &WorkOutput{Port: p, NItems: n}
}

// Items returns raw bytes of the window.
func (out *WorkOutput) Items() []byte {
	if out.NItems == 0 {
		return nil
	}
	b, _ := out.Port.buf.WritePtr()
	return b[:out.NItems*out.Port.itemSize]
}

// Produce sets the number of produced items.
func (out *WorkOutput) Produce(n int) {
	out.NProduced = n
}

// ItemsWritten returns absolute offset of the first item in the window.
func (out *WorkOutput) ItemsWritten() uint64 {
	return out.Port.buf.TotalWritten()
}

// AddTag stages a tag at absolute offset. Staged tags are committed to the
// buffer together with produced items.
func (out *WorkOutput) AddTag(offset uint64, m tag.Map) {
	out.tags = append(out.tags, tag.New(offset, m))
}

// Tags returns staged tags.
func (out *WorkOutput) Tags() []tag.Tag {
	return out.tags
}

// InputItems returns the window as slice of T. Port item size must be a
// multiple of T size.
func InputItems[T any](in *WorkInput) []T {
	return asSlice[T](in.Items())
}

// OutputItems returns the window as slice of T. Port item size must be a
// multiple of T size.
func OutputItems[T any](out *WorkOutput) []T {
	return asSlice[T](out.Items())
}

func asSlice[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// ConsumeEach consumes n items of every input.
func ConsumeEach(in []*WorkInput, n int) {
	for i := range in {
		in[i].Consume(n)
	}
}

// ProduceEach produces n items on every output.
func ProduceEach(out []*WorkOutput, n int) {
	for i := range out {
		out[i].Produce(n)
	}
}

// MinItems returns the smallest window among inputs and outputs.
// Unconnected optional inputs are skipped.
func MinItems(in []*WorkInput, out []*WorkOutput) int {
	n := -1
	for i := range in {
		if in[i].Port.Reader() == nil {
			continue
		}
		if n < 0 || in[i].NItems < n {
			n = in[i].NItems
		}
	}
	for i := range out {
		if n < 0 || out[i].NItems < n {
			n = out[i].NItems
		}
	}
	if n < 0 {
		return 0
	}
	return n
}
