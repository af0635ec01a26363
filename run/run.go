// Package run executes flowgraphs. Each domain of a flowgraph is executed
// by its own scheduler goroutine.
package run

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/flow"
	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/config"
	"pipelined.dev/flow/log"
	"pipelined.dev/flow/metric"
	"pipelined.dev/flow/run/internal/runtime"
)

type (
	// Run executes the flowgraph asynchronously.
	Run struct {
		id      xid.ID
		fg      *flow.Flowgraph
		cancel  context.CancelFunc
		group   *errgroup.Group
		logger  *logrus.Logger
		metrics *metric.Metrics
		stopped atomic.Bool
		once    sync.Once
		err     error
	}

	// ErrorBlock is returned when work of a block fails.
	ErrorBlock = runtime.BlockError

	// Option configures the run.
	Option func(*options)

	options struct {
		logger      *logrus.Logger
		clock       clock.Clock
		registerer  prometheus.Registerer
		bufferItems int
		namespace   string
	}
)

// WithLogger sets the logger of schedulers.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the clock used for timed wakes.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRegisterer registers run metrics. Metrics are not registered by
// default.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithBufferItems sets minimal capacity of stream buffers.
func WithBufferItems(n int) Option {
	return func(o *options) {
		o.bufferItems = n
	}
}

// WithMetricsNamespace sets the namespace of run metrics.
func WithMetricsNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConfig applies buffer and metrics settings of the configuration.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		o.bufferItems = c.BufferItems
		o.namespace = c.MetricsNamespace
	}
}

// New validates the flowgraph, binds buffers and starts one scheduler per
// domain. Run is stopped when the context is done.
func New(ctx context.Context, fg *flow.Flowgraph, opts ...Option) (*Run, error) {
	o := options{
		bufferItems: config.DefaultBufferItems,
		namespace:   config.DefaultMetricsNamespace,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.bufferItems < 1 {
		return nil, fmt.Errorf("invalid buffer items: %d", o.bufferItems)
	}
	if err := fg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flowgraph %s: %w", fg.Name(), err)
	}
	m, err := metric.New(o.namespace, o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	r := Run{
		id:      xid.New(),
		fg:      fg,
		logger:  o.logger,
		metrics: m,
	}
	partitions := fg.Partitions()
	for _, part := range partitions {
		for _, b := range part.Blocks {
			b.SetState(flow.Created)
		}
	}
	r.bind(o.bufferItems)

	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for _, part := range partitions {
		s := runtime.New(runtime.Config{
			Name:    part.Name,
			Blocks:  part.Blocks,
			Graph:   fg.Graph,
			Clock:   o.clock,
			Logger:  o.logger,
			Metrics: m,
		})
		r.group.Go(func() error {
			return s.Run(ctx)
		})
	}
	r.logger.WithField("run", r.id.String()).Debugf("started %d domains", len(partitions))
	return &r, nil
}

// bind allocates buffers for stream outputs, adds readers for their peers
// and subscribes message peers. Items of unconnected outputs are discarded.
func (r *Run) bind(bufferItems int) {
	for _, b := range r.fg.UsedBlocks() {
		for _, p := range b.Outputs() {
			peers := r.fg.Peers(p)
			if p.Kind() == flow.MessageKind {
				p.Subscribe(peers...)
				continue
			}
			p.Bind(buffer.New(capacity(bufferItems, p, peers), p.ItemSize()))
			for _, peer := range peers {
				peer.BindReader(p.Buffer().AddReader())
			}
		}
	}
}

// capacity returns buffer size that fits at least two work windows of the
// writer and of every reader.
func capacity(items int, writer *flow.Port, readers []*flow.Port) int {
	n := max(items, 2*writer.Block().OutputMultiple())
	for _, p := range readers {
		b := p.Block()
		need := int(math.Ceil(float64(b.OutputMultiple()) / b.RelativeRate()))
		n = max(n, 2*need)
	}
	return n
}

// ID returns unique run id.
func (r *Run) ID() string {
	return r.id.String()
}

// Metrics returns run metrics.
func (r *Run) Metrics() *metric.Metrics {
	return r.metrics
}

// Wait for all domains to finish or the first error to occur. Error of
// explicit stop is not returned.
func (r *Run) Wait() error {
	r.once.Do(func() {
		err := r.group.Wait()
		r.cancel()
		r.unbind()
		if r.stopped.Load() && errors.Is(err, context.Canceled) {
			err = nil
		}
		r.err = err
		r.logger.WithField("run", r.id.String()).Debug("done")
	})
	return r.err
}

// Stop cancels the run and waits for it to finish.
func (r *Run) Stop() error {
	r.stopped.Store(true)
	r.cancel()
	return r.Wait()
}

func (r *Run) unbind() {
	for _, b := range r.fg.UsedBlocks() {
		for _, ports := range [][]*flow.Port{b.Inputs(), b.Outputs()} {
			for _, p := range ports {
				p.Unbind()
			}
		}
	}
}
