// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one long-running loop. Returning nil means the task is done;
// the other tasks keep running.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

// Scheduler runs a fixed set of tasks against one device.
// Device access is serialized by the transport guard, not here.
type Scheduler struct {
	log   *zap.Logger
	tasks []namedTask
}

// New returns an empty scheduler.
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{log: log}
}

// Add registers a task. Must be called before Run.
func (s *Scheduler) Add(name string, t Task) {
	if t == nil {
		return
	}
	s.tasks = append(s.tasks, namedTask{name: name, run: t})
}

// Len is the number of registered tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }

// Run starts every task and waits.
//
// Cancelling ctx stops all tasks at their next checkpoint and Run returns nil.
// A task error cancels the others and is returned. Device state is left as
// last applied either way.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return errors.New("scheduler: no tasks")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			log := s.log.With(zap.String("task", t.name))
			log.Debug("task started")

			err := t.run(gctx)
			switch {
			case err == nil:
				log.Debug("task finished")
				return nil
			case gctx.Err() != nil && errors.Is(err, gctx.Err()):
				return nil
			default:
				log.Error("task stopped", zap.Error(err))
				return fmt.Errorf("%s: %w", t.name, err)
			}
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
