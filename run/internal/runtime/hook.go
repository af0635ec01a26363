package runtime

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"pipelined.dev/flow"
)

// start calls start hooks of all blocks until one fails. Blocks that were
// started are stopped on teardown.
func (s *Scheduler) start(ctx context.Context) error {
	for _, b := range s.blocks {
		b.SetState(flow.Started)
		if err := b.StartHook(ctx); err != nil {
			b.SetState(flow.Stopped)
			return fmt.Errorf("block %s: %w", b.Alias(), err)
		}
		s.started = append(s.started, b)
	}
	return nil
}

// stop calls stop hooks of started blocks. Errors of all hooks are
// combined.
func (s *Scheduler) stop(ctx context.Context) error {
	var err error
	for _, b := range s.started {
		if hookErr := b.StopHook(ctx); hookErr != nil {
			err = multierr.Append(err, fmt.Errorf("block %s: %w", b.Alias(), hookErr))
		}
		b.SetState(flow.Stopped)
	}
	s.started = nil
	return err
}
