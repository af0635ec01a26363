package streamops

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
)

// Throttle parameter and tag keys.
const (
	SamplesPerSecond = "samples_per_second"
	RxRate           = "rx_rate"
)

type throttle struct {
	block      *flow.Block
	limiter    *rate.Limiter
	ignoreTags bool
}

// Throttle limits the stream to samplesPerSecond items per second of the
// scheduler clock. Instead of sleeping the block requests a wake when the
// budget is spent. Unless ignoreTags is set, an rx_rate tag changes the
// rate.
func Throttle(itemSize int, samplesPerSecond float64, ignoreTags bool) *flow.Block {
	if samplesPerSecond <= 0 {
		panic("throttle: rate must be positive")
	}
	t := &throttle{
		limiter:    rate.NewLimiter(rate.Limit(samplesPerSecond), burst(samplesPerSecond)),
		ignoreTags: ignoreTags,
	}
	t.block = flow.NewBlock("throttle", t,
		flow.Inputs(inputs(1, itemSize)...),
		flow.Outputs(outputs(1, itemSize)...),
		flow.Param(SamplesPerSecond, pmt.Float(samplesPerSecond)),
	)
	return t.block
}

// burst allows a tenth of a second worth of items at once.
func burst(samplesPerSecond float64) int {
	return max(1, int(samplesPerSecond/10))
}

func (t *throttle) setRate(now time.Time, samplesPerSecond float64) {
	t.limiter.SetLimitAt(now, rate.Limit(samplesPerSecond))
	t.limiter.SetBurstAt(now, burst(samplesPerSecond))
}

// Start resets the budget.
func (t *throttle) Start(context.Context) error {
	t.limiter = rate.NewLimiter(t.limiter.Limit(), t.limiter.Burst())
	return nil
}

// ParamChanged validates and applies new rate.
func (t *throttle) ParamChanged(name string, v pmt.Value) error {
	if name != SamplesPerSecond {
		return nil
	}
	sps, ok := v.Float()
	if !ok || sps <= 0 {
		return fmt.Errorf("invalid %s: %v", SamplesPerSecond, v)
	}
	t.setRate(t.block.Now(), sps)
	return nil
}

func (t *throttle) Work(in []*flow.WorkInput, out []*flow.WorkOutput) (flow.WorkStatus, error) {
	now := t.block.Now()
	if !t.ignoreTags {
		for _, tg := range in[0].Tags() {
			if v, ok := tg.Get(RxRate); ok {
				if sps, ok := v.Float(); ok && sps > 0 {
					t.setRate(now, sps)
					t.block.AddParam(SamplesPerSecond, pmt.Float(sps))
				}
			}
		}
	}

	n := min(out[0].NItems, t.limiter.Burst())
	if tokens := int(t.limiter.TokensAt(now)); tokens < n {
		n = max(tokens, 0)
	}
	if n == 0 {
		r := t.limiter.ReserveN(now, 1)
		delay := r.DelayFrom(now)
		r.CancelAt(now)
		t.block.WakeAfter(delay)
		return flow.WorkOK, nil
	}
	t.limiter.AllowN(now, n)
	copyItems(out[0], in[0], n)
	out[0].Produce(n)
	return flow.WorkOK, nil
}
