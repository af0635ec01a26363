package flow

import (
	"time"

	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/pmt"
)

type (
	// Scheduler executes blocks of one domain. Blocks use it to post
	// messages to themselves and their neighbours.
	Scheduler interface {
		// Post enqueues the message. Messages posted after the scheduler
		// is torn down are cancelled with ErrNotApplied.
		Post(Message)
		Clock() clock.Clock
	}

	// Message is an item of the scheduler queue.
	Message interface {
		Target() BlockID
		// Cancel releases the sender if the message cannot be handled.
		Cancel(err error)
	}

	// Action is the kind of notification.
	Action uint8

	// Notify asks the scheduler to re-evaluate the target block. NotifyAll
	// re-evaluates every block of the scheduler.
	Notify struct {
		Action Action
		Block  BlockID
	}

	// ParamChange requests parameter change. Done is called once with
	// the result, it may be nil.
	ParamChange struct {
		Block BlockID
		Name  string
		Value pmt.Value
		Done  func(error)
	}

	// ParamQuery requests parameter value. Done is called once with the
	// result, it may be nil.
	ParamQuery struct {
		Block BlockID
		Name  string
		Done  func(pmt.Value, error)
	}

	// Wake asks the scheduler timer service to notify the block after a
	// delay.
	Wake struct {
		Block BlockID
		After time.Duration
	}

	// Deliver passes a value to message input port.
	Deliver struct {
		Block BlockID
		Port  string
		Value pmt.Value
	}
)

// Notification actions.
const (
	NotifyInput Action = iota
	NotifyOutput
	NotifyAll
)

func (a Action) String() string {
	switch a {
	case NotifyInput:
		return "notify_input"
	case NotifyOutput:
		return "notify_output"
	}
	return "notify_all"
}

// Target returns target block.
func (m Notify) Target() BlockID { return m.Block }

// Cancel is no-op.
func (Notify) Cancel(error) {}

// Target returns target block.
func (m ParamChange) Target() BlockID { return m.Block }

// Cancel completes the request with err.
func (m ParamChange) Cancel(err error) { m.Complete(err) }

// Complete calls Done if provided.
func (m ParamChange) Complete(err error) {
	if m.Done != nil {
		m.Done(err)
	}
}

// Target returns target block.
func (m ParamQuery) Target() BlockID { return m.Block }

// Cancel completes the request with err.
func (m ParamQuery) Cancel(err error) { m.Complete(pmt.Value{}, err) }

// Complete calls Done if provided.
func (m ParamQuery) Complete(v pmt.Value, err error) {
	if m.Done != nil {
		m.Done(v, err)
	}
}

// Target returns target block.
func (m Wake) Target() BlockID { return m.Block }

// Cancel is no-op.
func (Wake) Cancel(error) {}

// Target returns target block.
func (m Deliver) Target() BlockID { return m.Block }

// Cancel is no-op.
func (Deliver) Cancel(error) {}
