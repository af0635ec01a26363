package flow

import (
	"fmt"
	"unsafe"

	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/pmt"
)

// Direction of the port.
type Direction uint8

// Port directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// PortKind defines what the port carries.
type PortKind uint8

// Port kinds.
const (
	StreamKind PortKind = iota
	MessageKind
)

func (k PortKind) String() string {
	if k == StreamKind {
		return "stream"
	}
	return "message"
}

// Item size resolved for ports of fully untyped components: a single
// complex64 sample.
const (
	DefaultItemSize = 8
	DefaultFormat   = "Zf"
)

// Port is a typed endpoint of a block. Stream ports are bound to a buffer
// (output) or a buffer reader (input) before execution. Message ports route
// values to a registered callback.
type Port struct {
	name         string
	dir          Direction
	kind         PortKind
	block        *Block
	index        int
	format       string
	shape        []int
	itemSize     int
	optional     bool
	multiplicity int
	// untyped ports of one block share item size
	untyped bool

	buf         *buffer.Buffer
	reader      *buffer.Reader
	subscribers []*Port
	callback    func(pmt.Value)
}

// PortOption configures the port.
type PortOption func(*Port)

// Shape sets item dimensions. Item size is multiplied by every dimension.
func Shape(dims ...int) PortOption {
	return func(p *Port) {
		p.shape = append([]int(nil), dims...)
	}
}

// Optional allows the port to stay unconnected.
func Optional() PortOption {
	return func(p *Port) {
		p.optional = true
	}
}

// Multiplicity sets the number of physical instances the port represents.
func Multiplicity(n int) PortOption {
	return func(p *Port) {
		p.multiplicity = n
	}
}

// Format sets the format descriptor of items.
func Format(f string) PortOption {
	return func(p *Port) {
		p.format = f
	}
}

// ItemSize sets item size of untyped port in bytes.
func ItemSize(n int) PortOption {
	return func(p *Port) {
		p.itemSize = n
	}
}

func newPort(name string, dir Direction, kind PortKind, opts []PortOption) *Port {
	p := &Port{
		name:         name,
		dir:          dir,
		kind:         kind,
		multiplicity: 1,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Typed returns a stream port for items of type T.
func Typed[T any](name string, dir Direction, opts ...PortOption) *Port {
	var zero T
	p := newPort(name, dir, StreamKind, append([]PortOption{Format(formatOf(zero))}, opts...))
	p.itemSize = int(unsafe.Sizeof(zero)) * shapeSize(p.shape)
	return p
}

// Untyped returns a stream port which item size is resolved from connected
// ports, unless provided with ItemSize option. All untyped ports of a block
// resolve to the same item size.
func Untyped(name string, dir Direction, opts ...PortOption) *Port {
	p := newPort(name, dir, StreamKind, opts)
	if p.itemSize > 0 {
		p.itemSize *= shapeSize(p.shape)
	} else {
		p.untyped = true
	}
	return p
}

// MessagePort returns a message port.
func MessagePort(name string, dir Direction, opts ...PortOption) *Port {
	return newPort(name, dir, MessageKind, opts)
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func formatOf(v any) string {
	switch v.(type) {
	case int8:
		return "b"
	case uint8:
		return "B"
	case int16:
		return "h"
	case uint16:
		return "H"
	case int32:
		return "i"
	case uint32:
		return "I"
	case int64:
		return "q"
	case uint64:
		return "Q"
	case float32:
		return "f"
	case float64:
		return "d"
	case complex64:
		return "Zf"
	case complex128:
		return "Zd"
	}
	return fmt.Sprintf("%T", v)
}

// Name returns port name, unique among ports of the same direction.
func (p *Port) Name() string { return p.name }

// Direction returns port direction.
func (p *Port) Direction() Direction { return p.dir }

// Kind returns port kind.
func (p *Port) Kind() PortKind { return p.kind }

// Block returns the owner block.
func (p *Port) Block() *Block { return p.block }

// Index returns position of the port among block's ports of the same
// direction and kind.
func (p *Port) Index() int { return p.index }

// ItemSize returns item size in bytes, zero if not resolved yet.
func (p *Port) ItemSize() int { return p.itemSize }

// SetItemSize sets item size in bytes.
func (p *Port) SetItemSize(n int) { p.itemSize = n }

// Format returns format descriptor of items.
func (p *Port) Format() string { return p.format }

// SetFormat sets format descriptor of items.
func (p *Port) SetFormat(f string) { p.format = f }

// Shape returns item dimensions.
func (p *Port) Shape() []int { return p.shape }

// IsOptional reports if port may stay unconnected.
func (p *Port) IsOptional() bool { return p.optional }

// Multiplicity returns number of instances the port represents.
func (p *Port) Multiplicity() int { return p.multiplicity }

// Buffer returns bound buffer of stream port. For input ports this is the
// buffer of connected output.
func (p *Port) Buffer() *buffer.Buffer { return p.buf }

// Reader returns bound reader of stream input port.
func (p *Port) Reader() *buffer.Reader { return p.reader }

// Bind binds a buffer to stream output port.
func (p *Port) Bind(b *buffer.Buffer) {
	p.buf = b
}

// BindReader binds a reader to stream input port.
func (p *Port) BindReader(r *buffer.Reader) {
	p.reader = r
	if r != nil {
		p.buf = r.Buffer()
	}
}

// Subscribe sets ports that receive values posted to message output.
func (p *Port) Subscribe(ports ...*Port) {
	p.subscribers = append([]*Port(nil), ports...)
}

// Unbind releases buffers and subscribers bound to the port.
func (p *Port) Unbind() {
	if p.reader != nil {
		p.reader.Buffer().RemoveReader(p.reader)
	}
	p.buf, p.reader, p.subscribers = nil, nil, nil
}

// RegisterCallback sets the handler of values delivered to message input.
func (p *Port) RegisterCallback(fn func(pmt.Value)) {
	p.callback = fn
}

// Post sends a value through message port. Values posted to output are
// delivered to every subscriber, values posted to input are delivered to
// the port itself. Delivery goes through the scheduler of the receiving
// block, or happens inline if the block is not scheduled.
func (p *Port) Post(v pmt.Value) {
	if p.kind != MessageKind {
		panic(fmt.Sprintf("post to %v port %s", p.kind, p.name))
	}
	if p.dir == Input {
		p.post(v)
		return
	}
	for _, s := range p.subscribers {
		s.post(v)
	}
}

func (p *Port) post(v pmt.Value) {
	if p.block != nil {
		if s, ok := p.block.scheduler(); ok {
			s.Post(Deliver{Block: p.block.id, Port: p.name, Value: v})
			return
		}
	}
	p.Deliver(v)
}

// Deliver invokes the registered callback. Schedulers call it when a
// Deliver message is handled.
func (p *Port) Deliver(v pmt.Value) {
	if p.callback != nil {
		p.callback(v)
	}
}

func (p *Port) String() string {
	if p.block == nil {
		return p.name
	}
	return p.block.Alias() + ":" + p.name
}
