package runtime

import (
	"sync"
	"time"

	"pipelined.dev/flow"
	"pipelined.dev/flow/clock"
)

// Timers posts delayed wake notifications. One timer is kept per block,
// arming a block again replaces its pending timer.
type Timers struct {
	mu      sync.Mutex
	clock   clock.Clock
	post    func(flow.Message)
	pending map[flow.BlockID]clock.Timer
}

// NewTimers returns timer service that delivers wakes with post.
func NewTimers(c clock.Clock, post func(flow.Message)) *Timers {
	return &Timers{
		clock:   c,
		post:    post,
		pending: make(map[flow.BlockID]clock.Timer),
	}
}

// Arm schedules NotifyInput for block after d.
func (t *Timers) Arm(id flow.BlockID, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.pending[id]; ok {
		existing.Stop()
	}
	var timer clock.Timer
	timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.pending[id] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.pending, id)
		t.mu.Unlock()
		t.post(flow.Notify{Action: flow.NotifyInput, Block: id})
	})
	t.pending[id] = timer
}

// Pending reports if block has a timer armed.
func (t *Timers) Pending(id flow.BlockID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// StopAll cancels every pending timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
}
