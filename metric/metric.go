// Package metric collects per-block work counters.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds collectors shared by all blocks of a run.
type Metrics struct {
	workCalls    *prometheus.CounterVec
	produced     *prometheus.CounterVec
	consumed     *prometheus.CounterVec
	workDuration *prometheus.HistogramVec
	wakes        *prometheus.CounterVec
}

// New creates collectors in namespace and registers them with reg. Nil
// registerer keeps collectors unregistered.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		workCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "work_calls_total",
			Help:      "Number of work invocations",
		}, []string{"block"}),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "items_produced_total",
			Help:      "Number of items produced on output ports",
		}, []string{"block", "port"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "items_consumed_total",
			Help:      "Number of items consumed from input ports",
		}, []string{"block", "port"}),
		workDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "work_duration_seconds",
			Help:      "Duration of work invocations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"block"}),
		wakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "timer_wakes_total",
			Help:      "Number of timer wakes delivered to blocks",
		}, []string{"block"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.workCalls, m.produced, m.consumed, m.workDuration, m.wakes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MeasureFunc captures a single work call. Inputs and outputs are items
// consumed and produced per port in port order.
type MeasureFunc func(elapsed time.Duration, consumed, produced []int)

// Meter returns a closure that captures work metrics of a block. Port
// label values are resolved once. Nil metrics return a no-op meter.
func (m *Metrics) Meter(block string, inputs, outputs []string) MeasureFunc {
	if m == nil {
		return func(time.Duration, []int, []int) {}
	}
	calls := m.workCalls.WithLabelValues(block)
	duration := m.workDuration.WithLabelValues(block)
	in := make([]prometheus.Counter, len(inputs))
	for i := range inputs {
		in[i] = m.consumed.WithLabelValues(block, inputs[i])
	}
	out := make([]prometheus.Counter, len(outputs))
	for i := range outputs {
		out[i] = m.produced.WithLabelValues(block, outputs[i])
	}
	return func(elapsed time.Duration, consumed, produced []int) {
		calls.Inc()
		duration.Observe(elapsed.Seconds())
		for i := range consumed {
			if i < len(in) {
				in[i].Add(float64(consumed[i]))
			}
		}
		for i := range produced {
			if i < len(out) {
				out[i].Add(float64(produced[i]))
			}
		}
	}
}

// Wake records a timer wake for block.
func (m *Metrics) Wake(block string) {
	if m == nil {
		return
	}
	m.wakes.WithLabelValues(block).Inc()
}
