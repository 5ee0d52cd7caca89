package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/events"
	internal "github.com/cschleiden/go-wfnet/internal/worker"
)

// Worker processes the pending work of an engine: sub-workflow starts, child outcomes, and cascading
// cancellations that cross workflow instance boundaries.
type Worker struct {
	engine  *engine.Engine
	options *Options
	logger  *slog.Logger

	pollers *internal.Worker
	cron    *cron.Cron

	wg sync.WaitGroup
}

// New creates a worker for the given engine.
func New(e *engine.Engine, options *Options) *Worker {
	if options == nil {
		options = &DefaultOptions
	}

	o := *options
	if o.Pollers <= 0 {
		o.Pollers = DefaultOptions.Pollers
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = DefaultOptions.PollingInterval
	}

	logger := e.Backend().Logger()

	return &Worker{
		engine:  e,
		options: &o,
		logger:  logger,
		pollers: internal.NewWorker(logger, e.RunSchedulerTick, &internal.WorkerOptions{
			Pollers:         o.Pollers,
			PollingInterval: o.PollingInterval,
			TickTimeout:     o.TickTimeout,
		}),
	}
}

// Start starts the worker.
//
// To stop the worker, cancel the context passed to Start. To wait for completion of the active
// ticks, call `WaitForCompletion`.
func (w *Worker) Start(ctx context.Context) error {
	if w.options.Schedule != "" {
		w.cron = cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))

		if _, err := w.cron.AddFunc(w.options.Schedule, w.pollers.Wake); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", w.options.Schedule, err)
		}
	}

	if n, ok := w.engine.Backend().(backend.PendingNotifier); ok {
		notifications, err := n.PendingNotifications(ctx)
		if err != nil {
			return fmt.Errorf("subscribing to pending work: %w", err)
		}

		if notifications != nil {
			forward(&w.wg, notifications, w.pollers.Wake)
		}
	}

	if w.options.Subscriber != nil {
		notifications, err := events.SubscribePending(ctx, w.options.Subscriber)
		if err != nil {
			return err
		}

		forward(&w.wg, notifications, w.pollers.Wake)
	}

	if w.options.CacheEviction {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.engine.StartCacheEviction(ctx)
		}()
	}

	if err := w.pollers.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	if w.cron != nil {
		w.cron.Start()
	}

	w.logger.DebugContext(ctx, "worker started", "pollers", w.options.Pollers)

	return nil
}

// forward wakes a poller for every notification until the channel is closed.
func forward[T any](wg *sync.WaitGroup, c <-chan T, wake func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for range c {
			wake()
		}
	}()
}

// WaitForCompletion waits for all active ticks to complete.
func (w *Worker) WaitForCompletion() error {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}

	if err := w.pollers.WaitForCompletion(); err != nil {
		return fmt.Errorf("waiting for worker completion: %w", err)
	}

	w.wg.Wait()

	return nil
}
