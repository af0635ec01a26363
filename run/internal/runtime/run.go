package runtime

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"pipelined.dev/flow"
)

// Run starts blocks and executes them until all streaming blocks are done
// or context is cancelled. Blocks are stopped and unbound before return.
// Messages left in the queue are cancelled.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	for _, b := range s.blocks {
		b.Bind(s)
	}
	defer func() {
		err = multierr.Append(err, s.teardown(context.WithoutCancel(ctx)))
	}()
	if err := s.start(ctx); err != nil {
		return fmt.Errorf("error starting domain %s: %w", s.name, err)
	}
	s.logger.Debug("started")

	s.markAll()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.handle(s.queue.Drain())
		progressed, err := s.work()
		if err != nil {
			return err
		}
		if s.done() {
			s.logger.Debug("done")
			return nil
		}
		if progressed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.Ready():
		}
	}
}

func (s *Scheduler) teardown(ctx context.Context) error {
	s.timers.StopAll()
	err := s.stop(ctx)
	for _, b := range s.blocks {
		b.Unbind()
	}
	for _, m := range s.queue.Close() {
		m.Cancel(flow.ErrNotApplied)
	}
	return err
}
