package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs tasks in the background of the API process, at most
// `concurrency` at a time.
type Dispatcher struct {
	runner *Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewDispatcher(runner *Runner, concurrency int, logger *zerolog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Dispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: l.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch schedules the task and returns immediately.
func (d *Dispatcher) Dispatch(taskID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Error().Err(err).Str("task_id", taskID).Msg("dispatcher: acquire failed")
			return
		}
		defer d.sem.Release(1)
		if err := d.runner.RunByID(ctx, taskID); err != nil {
			d.logger.Error().Err(err).Str("task_id", taskID).Msg("dispatcher: run failed")
		}
	}()
}

// Wait blocks until every dispatched run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
