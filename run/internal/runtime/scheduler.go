package runtime

import (
	"github.com/sirupsen/logrus"

	"pipelined.dev/flow"
	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/metric"
	"pipelined.dev/flow/pmt"
)

type (
	// Config of a scheduler.
	Config struct {
		// Name of the domain.
		Name string
		// Blocks executed by the scheduler.
		Blocks []*flow.Block
		// Graph is used to resolve block neighbours.
		Graph   *flow.Graph
		Clock   clock.Clock
		Logger  *logrus.Logger
		Metrics *metric.Metrics
	}

	// Scheduler executes blocks of a single domain on one goroutine. All
	// state changes of its blocks happen in response to messages.
	Scheduler struct {
		name      string
		blocks    []*flow.Block
		executors map[flow.BlockID]*Executor
		// streaming executors in topological order
		order   []*Executor
		dirty   map[flow.BlockID]bool
		queue   *Queue
		timers  *Timers
		clock   clock.Clock
		logger  *logrus.Entry
		metrics *metric.Metrics
		started []*flow.Block
	}
)

// New returns a scheduler for blocks. Blocks are expected to be in
// topological order.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	s := &Scheduler{
		name:      cfg.Name,
		blocks:    cfg.Blocks,
		executors: make(map[flow.BlockID]*Executor, len(cfg.Blocks)),
		dirty:     make(map[flow.BlockID]bool, len(cfg.Blocks)),
		queue:     NewQueue(),
		clock:     cfg.Clock,
		logger:    cfg.Logger.WithField("domain", cfg.Name),
		metrics:   cfg.Metrics,
	}
	s.timers = NewTimers(cfg.Clock, s.Post)
	for _, b := range cfg.Blocks {
		e := NewExecutor(b, cfg.Graph, cfg.Metrics)
		s.executors[b.ID()] = e
		if e.Streaming() {
			s.order = append(s.order, e)
		}
	}
	return s
}

// Name returns the domain name.
func (s *Scheduler) Name() string {
	return s.name
}

// Post enqueues the message. Messages posted after the scheduler has
// exited are cancelled with flow.ErrNotApplied.
func (s *Scheduler) Post(m flow.Message) {
	if !s.queue.Put(m) {
		m.Cancel(flow.ErrNotApplied)
	}
}

// Clock returns the scheduler clock.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

func (s *Scheduler) handle(msgs []flow.Message) {
	for _, m := range msgs {
		e, ok := s.executors[m.Target()]
		switch m := m.(type) {
		case flow.Notify:
			if m.Action == flow.NotifyAll || m.Block == 0 {
				s.markAll()
			} else if ok {
				s.dirty[m.Block] = true
			}
		case flow.ParamChange:
			if !ok {
				m.Complete(flow.ErrBlockNotFound)
				continue
			}
			err := e.Block.OnParameterChange(m.Name, m.Value)
			if err != nil && m.Done == nil {
				e.Block.Logger().Warnf("param %s: %v", m.Name, err)
			}
			m.Complete(err)
			s.dirty[m.Block] = true
		case flow.ParamQuery:
			if !ok {
				m.Complete(pmt.Value{}, flow.ErrBlockNotFound)
				continue
			}
			m.Complete(e.Block.OnParameterQuery(m.Name))
		case flow.Wake:
			if ok && !e.Done() {
				s.timers.Arm(m.Block, m.After)
				s.metrics.Wake(e.Block.Alias())
			}
		case flow.Deliver:
			if !ok {
				continue
			}
			if p := e.Block.Input(m.Port); p != nil && p.Kind() == flow.MessageKind {
				p.Deliver(m.Value)
			}
			s.dirty[m.Block] = true
		default:
			s.logger.Warnf("unknown message %T", m)
		}
	}
}

func (s *Scheduler) markAll() {
	for _, e := range s.order {
		s.dirty[e.Block.ID()] = true
	}
}

// work executes dirty blocks once in topological order. It returns true
// if any block made progress.
func (s *Scheduler) work() (bool, error) {
	progressed := false
	for _, e := range s.order {
		id := e.Block.ID()
		if !s.dirty[id] || e.Done() {
			continue
		}
		delete(s.dirty, id)
		res, err := e.Execute()
		if err != nil {
			return false, err
		}
		switch {
		case res.Done:
			progressed = true
		case res.Progress:
			e.Block.SetState(flow.Running)
			s.dirty[id] = true
			progressed = true
		case res.Exhausted && !s.timers.Pending(id):
			e.Finish()
			progressed = true
		default:
			e.Block.SetState(flow.Waiting)
		}
	}
	return progressed, nil
}

// done reports if every streaming block has finished.
func (s *Scheduler) done() bool {
	for _, e := range s.order {
		if !e.Done() {
			return false
		}
	}
	return true
}
