package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/scheduler"
)

// TickFunc processes one batch of pending work.
type TickFunc func(context.Context) (scheduler.TickResult, error)

// Worker runs scheduler ticks from a set of pollers. A poller ticks again right away while work remains,
// otherwise it waits for the polling interval or a wake-up.
type Worker struct {
	options *WorkerOptions

	tick TickFunc

	wake chan struct{}

	logger *slog.Logger

	pollersWg sync.WaitGroup
}

type WorkerOptions struct {
	Pollers int

	PollingInterval time.Duration

	// TickTimeout bounds a single tick. Defaults to 30 seconds.
	TickTimeout time.Duration
}

func NewWorker(logger *slog.Logger, tick TickFunc, options *WorkerOptions) *Worker {
	return &Worker{
		tick:    tick,
		options: options,
		wake:    make(chan struct{}, options.Pollers),
		logger:  logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.pollersWg.Add(w.options.Pollers)

	for i := 0; i < w.options.Pollers; i++ {
		go w.poller(ctx)
	}

	return nil
}

// Wake makes one waiting poller tick immediately. It never blocks; wake-ups beyond the number of pollers
// are dropped.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) WaitForCompletion() error {
	// Wait for pollers to finish their current tick
	w.pollersWg.Wait()

	return nil
}

func (w *Worker) poller(ctx context.Context) {
	defer w.pollersWg.Done()

	ticker := time.NewTicker(w.options.PollingInterval)
	defer ticker.Stop()

	for {
		r, err := w.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.ErrorContext(ctx, "error running scheduler tick", "error", err)
		} else if !r.Settled && r.Processed > 0 {
			continue // more work is pending, tick again right away
		}

		select {
		case <-ticker.C:
		case <-w.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) run(ctx context.Context) (scheduler.TickResult, error) {
	timeout := w.options.TickTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, err := w.tick(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.logger.WarnContext(ctx, "scheduler tick timed out", log.DurationKey, timeout.Milliseconds())
			return r, nil
		}

		return r, err
	}

	if r.Processed > 0 {
		w.logger.DebugContext(ctx, "processed pending work", log.ProcessedKey, r.Processed, log.SettledKey, r.Settled)
	}

	return r, nil
}
