package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/flow/log"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

// Names of system message ports present on every block.
const (
	ParamUpdatePort = "param_update"
	SystemPort      = "system"
)

type (
	// Kernel is the computation performed by a block. Work is called with
	// input windows of available items and output windows of free slots.
	// It must not block: a kernel that has to wait returns and requests a
	// wake with Block.WakeAfter.
	Kernel interface {
		Work(in []*WorkInput, out []*WorkOutput) (WorkStatus, error)
	}

	// Starter is implemented by kernels that need to be initialized before
	// the first work call.
	Starter interface {
		Start(ctx context.Context) error
	}

	// Stopper is implemented by kernels that need to release resources
	// after the last work call.
	Stopper interface {
		Stop(ctx context.Context) error
	}

	// ParamChanger is implemented by kernels that validate or react on
	// parameter changes. Returned error rejects the change.
	ParamChanger interface {
		ParamChanged(name string, v pmt.Value) error
	}

	// Node is anything that provides a block.
	Node interface {
		Base() *Block
	}
)

// BlockID identifies a block within its graph. Zero value means the block
// is not added to any graph.
type BlockID int

// State of the block.
type State uint8

// Block states.
const (
	Created State = iota
	Started
	Running
	Waiting
	Stopped
	Done
)

var stateNames = [...]string{"created", "started", "running", "waiting", "stopped", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Block is a graph node that owns ports, parameters and a kernel.
type Block struct {
	name           string
	alias          string
	id             BlockID
	kernel         Kernel
	inputs         []*Port
	outputs        []*Port
	tagPolicy      tag.Policy
	outputMultiple int
	relativeRate   float64
	logger         *logrus.Entry

	paramMu    sync.Mutex
	params     map[string]pmt.Value
	paramOrder []string

	mu       sync.Mutex
	sched    Scheduler
	state    State
	finished bool
}

// BlockOption configures the block.
type BlockOption func(*Block)

// Inputs adds input ports.
func Inputs(ports ...*Port) BlockOption {
	return func(b *Block) {
		for _, p := range ports {
			b.AddInput(p)
		}
	}
}

// Outputs adds output ports.
func Outputs(ports ...*Port) BlockOption {
	return func(b *Block) {
		for _, p := range ports {
			b.AddOutput(p)
		}
	}
}

// TagPolicy sets the tag propagation policy.
func TagPolicy(p tag.Policy) BlockOption {
	return func(b *Block) {
		b.tagPolicy = p
	}
}

// OutputMultiple sets the output multiple. Invalid values are reported by
// flowgraph validation.
func OutputMultiple(m int) BlockOption {
	return func(b *Block) {
		b.outputMultiple = m
	}
}

// RelativeRate sets the ratio of output to input items.
func RelativeRate(r float64) BlockOption {
	return func(b *Block) {
		b.relativeRate = r
	}
}

// Param declares a parameter with initial value.
func Param(name string, v pmt.Value) BlockOption {
	return func(b *Block) {
		b.AddParam(name, v)
	}
}

// Logger sets the logger used by the block.
func Logger(l *logrus.Logger) BlockOption {
	return func(b *Block) {
		b.logger = l.WithField("block", b.alias)
	}
}

// NewBlock creates a block with provided kernel. Alias is the name
// followed by a unique id.
func NewBlock(name string, k Kernel, opts ...BlockOption) *Block {
	b := &Block{
		name:           name,
		alias:          name + "_" + xid.New().String(),
		kernel:         k,
		tagPolicy:      tag.AllToAll,
		outputMultiple: 1,
		relativeRate:   1,
		params:         make(map[string]pmt.Value),
	}
	b.logger = log.GetLogger().WithField("block", b.alias)

	paramUpdate := MessagePort(ParamUpdatePort, Input, Optional())
	paramUpdate.RegisterCallback(b.handleParamUpdate)
	system := MessagePort(SystemPort, Input, Optional())
	system.RegisterCallback(b.handleSystem)
	b.AddInput(paramUpdate)
	b.AddInput(system)

	for _, o := range opts {
		o(b)
	}
	return b
}

// Base returns the block itself.
func (b *Block) Base() *Block { return b }

// Name returns block name.
func (b *Block) Name() string { return b.name }

// Alias returns unique block name.
func (b *Block) Alias() string { return b.alias }

// SetAlias overrides unique block name.
func (b *Block) SetAlias(alias string) {
	b.alias = alias
	b.logger = b.logger.WithField("block", alias)
}

// ID returns block id assigned by graph.
func (b *Block) ID() BlockID { return b.id }

// Kernel returns block's kernel.
func (b *Block) Kernel() Kernel { return b.kernel }

// Logger returns block logger.
func (b *Block) Logger() *logrus.Entry { return b.logger }

func (b *Block) String() string { return b.alias }

// AddInput adds input port. Port names must be unique per direction.
func (b *Block) AddInput(p *Port) *Port {
	b.inputs = b.addPort(b.inputs, p, Input)
	return p
}

// AddOutput adds output port. Port names must be unique per direction.
func (b *Block) AddOutput(p *Port) *Port {
	b.outputs = b.addPort(b.outputs, p, Output)
	return p
}

func (b *Block) addPort(ports []*Port, p *Port, dir Direction) []*Port {
	if p.dir != dir {
		panic(fmt.Sprintf("block %s: add %v port %s as %v", b.name, p.dir, p.name, dir))
	}
	if p.block != nil {
		panic(fmt.Sprintf("block %s: port %s belongs to %s", b.name, p.name, p.block.name))
	}
	for _, e := range ports {
		if e.name == p.name {
			panic(fmt.Sprintf("block %s: duplicate %v port %s", b.name, dir, p.name))
		}
		if e.kind == p.kind {
			p.index++
		}
	}
	p.block = b
	return append(ports, p)
}

// Input returns input port by name.
func (b *Block) Input(name string) *Port {
	return findPort(b.inputs, name)
}

// Output returns output port by name.
func (b *Block) Output(name string) *Port {
	return findPort(b.outputs, name)
}

// Port returns port by name, inputs are searched first.
func (b *Block) Port(name string) *Port {
	if p := b.Input(name); p != nil {
		return p
	}
	return b.Output(name)
}

func findPort(ports []*Port, name string) *Port {
	for _, p := range ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Inputs returns all input ports.
func (b *Block) Inputs() []*Port { return b.inputs }

// Outputs returns all output ports.
func (b *Block) Outputs() []*Port { return b.outputs }

// StreamInputs returns stream input ports in declaration order.
func (b *Block) StreamInputs() []*Port { return filterKind(b.inputs, StreamKind) }

// StreamOutputs returns stream output ports in declaration order.
func (b *Block) StreamOutputs() []*Port { return filterKind(b.outputs, StreamKind) }

func filterKind(ports []*Port, k PortKind) []*Port {
	var result []*Port
	for _, p := range ports {
		if p.kind == k {
			result = append(result, p)
		}
	}
	return result
}

// TagPolicy returns tag propagation policy.
func (b *Block) TagPolicy() tag.Policy { return b.tagPolicy }

// SetTagPolicy sets tag propagation policy.
func (b *Block) SetTagPolicy(p tag.Policy) { b.tagPolicy = p }

// OutputMultiple returns the output multiple.
func (b *Block) OutputMultiple() int { return b.outputMultiple }

// SetOutputMultiple sets the number of items outputs are always presented
// in multiples of.
func (b *Block) SetOutputMultiple(m int) error {
	if m < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidOutputMultiple, m)
	}
	b.outputMultiple = m
	return nil
}

// RelativeRate returns the ratio of output to input items.
func (b *Block) RelativeRate() float64 { return b.relativeRate }

// SetRelativeRate declares that input item i corresponds to output item r*i.
func (b *Block) SetRelativeRate(r float64) { b.relativeRate = r }

// Bind attaches the block to a scheduler.
func (b *Block) Bind(s Scheduler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sched = s
}

// Unbind detaches the block from its scheduler.
func (b *Block) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sched = nil
}

// Scheduler returns the bound scheduler or nil.
func (b *Block) Scheduler() Scheduler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sched
}

// scheduler returns the bound scheduler and whether it executes the block.
func (b *Block) scheduler() (Scheduler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sched == nil {
		return nil, false
	}
	switch b.state {
	case Started, Running, Waiting:
		return b.sched, true
	}
	return b.sched, false
}

// State returns current block state.
func (b *Block) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState moves the block to state s. Done blocks stay done.
func (b *Block) SetState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Done && s != Created {
		return
	}
	if s == Created {
		b.finished = false
	}
	b.state = s
}

// Finish marks the block as finished. Its scheduler stops calling work.
func (b *Block) Finish() {
	b.mu.Lock()
	b.finished = true
	b.mu.Unlock()
	b.NotifyScheduler(NotifyAll)
}

// Finished reports if the block was asked to finish.
func (b *Block) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// StartHook calls the kernel start hook. Block does not implement Starter
// itself, so kernels that embed the block keep their own hooks.
func (b *Block) StartHook(ctx context.Context) error {
	if s, ok := b.kernel.(Starter); ok {
		return s.Start(ctx)
	}
	return nil
}

// StopHook calls the kernel stop hook.
func (b *Block) StopHook(ctx context.Context) error {
	if s, ok := b.kernel.(Stopper); ok {
		return s.Stop(ctx)
	}
	return nil
}

// NotifyScheduler asks the scheduler to re-evaluate the block. It returns
// false if the block is not bound.
func (b *Block) NotifyScheduler(a Action) bool {
	s := b.Scheduler()
	if s == nil {
		return false
	}
	s.Post(Notify{Action: a, Block: b.id})
	return true
}

// WakeAfter asks the scheduler to notify the block after d. It returns
// false if the block is not bound.
func (b *Block) WakeAfter(d time.Duration) bool {
	s := b.Scheduler()
	if s == nil {
		return false
	}
	s.Post(Wake{Block: b.id, After: d})
	return true
}

// Now returns current time of the bound scheduler clock, or wall time.
func (b *Block) Now() time.Time {
	if s := b.Scheduler(); s != nil {
		return s.Clock().Now()
	}
	return time.Now()
}

func (b *Block) handleParamUpdate(v pmt.Value) {
	id, ok := v.Get("id")
	name, isStr := id.Str()
	if !ok || !isStr {
		b.logger.Warnf("param update without id: %v", v)
		return
	}
	value, _ := v.Get("value")
	if err := b.OnParameterChange(name, value); err != nil {
		b.logger.Warnf("param update %s: %v", name, err)
	}
}

func (b *Block) handleSystem(v pmt.Value) {
	cmd, _ := v.Str()
	switch cmd {
	case "done":
		b.Finish()
	default:
		b.logger.Warnf("unknown system command: %v", v)
	}
}
