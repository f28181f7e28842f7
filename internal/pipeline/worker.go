package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wordbento/internal/domain"
)

const defaultIdleInterval = 2 * time.Second

// Claimer hands out pending tasks, already moved to processing.
type Claimer interface {
	Claim(ctx context.Context) (*domain.Task, error)
}

// Worker drains the pending queue in queue dispatch mode.
type Worker struct {
	claimer     Claimer
	runner      *Runner
	concurrency int
	idle        time.Duration
	logger      zerolog.Logger
}

type WorkerOptions struct {
	Claimer     Claimer
	Runner      *Runner
	Concurrency int
	// Idle is how long a loop sleeps when the queue is empty.
	Idle   time.Duration
	Logger *zerolog.Logger
}

func NewWorker(opts WorkerOptions) *Worker {
	w := &Worker{
		claimer:     opts.Claimer,
		runner:      opts.Runner,
		concurrency: opts.Concurrency,
		idle:        opts.Idle,
		logger:      zerolog.New(io.Discard),
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.idle <= 0 {
		w.idle = defaultIdleInterval
	}
	if opts.Logger != nil {
		w.logger = *opts.Logger
	}
	w.logger = w.logger.With().Str("component", "worker").Logger()
	return w
}

// Run starts the claim loops and blocks until ctx is cancelled. A task that
// is already running when ctx ends is finished first.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.logger.Info().Msg("worker: stopped")
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := w.claimer.Claim(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("worker: failed to claim task")
			}
			if !sleep(ctx, w.idle) {
				return ctx.Err()
			}
			continue
		}
		w.logger.Info().Str("task_id", task.ID).Str("work_kind", string(task.WorkKind)).Msg("worker: picked task")
		if err := w.runner.Run(ctx, task); err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: task update failed")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
