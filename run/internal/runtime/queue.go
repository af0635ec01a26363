package runtime

import (
	"sync"

	"pipelined.dev/flow"
)

// Queue is a FIFO of scheduler messages with many producers and one
// consumer.
type Queue struct {
	mu     sync.Mutex
	items  []flow.Message
	ready  chan struct{}
	closed bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends the message. It returns false if the queue is closed.
func (q *Queue) Put(m flow.Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled when messages are available.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain takes all queued messages.
func (q *Queue) Drain() []flow.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Close closes the queue and returns messages that were not drained.
func (q *Queue) Close() []flow.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	items := q.items
	q.items = nil
	return items
}
