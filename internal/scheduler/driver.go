package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/composite"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflowerrors"
	"github.com/cschleiden/go-wfnet/internal/workflows"
	"github.com/cschleiden/go-wfnet/metrics"
)

const DefaultBatchSize = 100

type Options struct {
	State state.Options

	// BatchSize is the maximum number of pending work items processed per tick.
	BatchSize int

	// MaxSettleIterations bounds the automatic transitions of a single transaction.
	MaxSettleIterations int

	// OnCommit is called after every committed unit.
	OnCommit func(ctx context.Context, u *state.Unit)
}

// TickResult describes the outcome of a scheduler tick.
type TickResult struct {
	// Settled is true if no pending work remains.
	Settled bool

	// Processed is the number of pending work items processed by the tick.
	Processed int
}

// Driver runs units of work against the backend and processes pending work.
type Driver struct {
	b       backend.Backend
	opts    Options
	logger  *slog.Logger
	metrics metrics.Client
}

func NewDriver(b backend.Backend, opts Options) *Driver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.State.Logger == nil {
		opts.State.Logger = b.Logger()
	}

	if opts.State.Clock == nil {
		opts.State.Clock = b.Options().Clock
	}

	return &Driver{
		b:       b,
		opts:    opts,
		logger:  opts.State.Logger,
		metrics: b.Metrics(),
	}
}

// Run executes fn in a single transaction, settles all automatic transitions, and commits. Nothing is
// written if fn or settling fails.
func (d *Driver) Run(ctx context.Context, fn func(ctx context.Context, u *state.Unit) error) (*state.Unit, error) {
	var unit *state.Unit

	err := d.b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		u := state.NewUnit(tx, d.opts.State)

		if err := fn(ctx, u); err != nil {
			return err
		}

		if err := Settle(ctx, u, d.opts.MaxSettleIterations); err != nil {
			return err
		}

		if err := u.Commit(ctx); err != nil {
			return err
		}

		unit = u

		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.opts.OnCommit != nil {
		d.opts.OnCommit(ctx, unit)
	}

	return unit, nil
}

// Tick processes up to one batch of pending work, oldest first, each in its own transaction.
func (d *Driver) Tick(ctx context.Context) (TickResult, error) {
	r, err := d.tick(ctx, "")

	d.metrics.Counter(metrickeys.SchedulerTick, metrics.Tags{}, 1)
	d.logger.Debug("scheduler tick", log.ProcessedKey, r.Processed, log.SettledKey, r.Settled)

	return r, err
}

// Drain processes the pending work of a single workflow tree until none remains or maxTicks batches were
// processed. Work that remains is left for later ticks.
func (d *Driver) Drain(ctx context.Context, traceID string, maxTicks int) (TickResult, error) {
	var result TickResult

	for i := 0; i < maxTicks; i++ {
		r, err := d.tick(ctx, traceID)
		result.Processed += r.Processed
		result.Settled = r.Settled

		if err != nil || r.Settled {
			return result, err
		}

		if r.Processed == 0 {
			// Everything we saw was claimed by someone else
			break
		}
	}

	return result, nil
}

func (d *Driver) tick(ctx context.Context, traceID string) (TickResult, error) {
	var result TickResult

	batch, err := d.pending(ctx, traceID, d.opts.BatchSize)
	if err != nil {
		return result, err
	}

	for _, p := range batch {
		ok, err := d.process(ctx, p)
		if err != nil {
			return result, err
		}

		if ok {
			result.Processed++
		}
	}

	remaining, err := d.pending(ctx, traceID, 1)
	if err != nil {
		return result, err
	}

	result.Settled = len(remaining) == 0

	return result, nil
}

func (d *Driver) pending(ctx context.Context, traceID string, limit int) ([]*state.PendingWork, error) {
	var r []*state.PendingWork

	err := d.b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		if traceID == "" {
			r, err = state.ListPending(ctx, tx, limit)
		} else {
			r, err = state.ListPendingForTrace(ctx, tx, traceID, limit)
		}

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending work: %w", err)
	}

	return r, nil
}

// process claims and applies the pending work. It reports false if another driver claimed it first.
func (d *Driver) process(ctx context.Context, p *state.PendingWork) (bool, error) {
	_, err := d.Run(ctx, func(ctx context.Context, u *state.Unit) error {
		if err := u.Claim(ctx, p); err != nil {
			return err
		}

		return Apply(ctx, u, p)
	})

	switch {
	case err == nil:
		d.metrics.Counter(metrickeys.PendingWorkProcessed, metrics.Tags{metrickeys.Kind: string(p.Kind)}, 1)
		return true, nil

	case errors.Is(err, backend.ErrConcurrentModification):
		d.logger.Debug("pending work claimed concurrently", log.PendingWorkIDKey, p.ID)
		return false, nil

	case ctx.Err() != nil:
		return false, err
	}

	return d.abandon(ctx, p, err)
}

// abandon claims pending work that cannot be applied and fails its workflow instance instead, so that it
// does not block the queue.
func (d *Driver) abandon(ctx context.Context, p *state.PendingWork, cause error) (bool, error) {
	d.logger.Error("could not process pending work",
		log.PendingWorkIDKey, p.ID,
		log.PendingWorkKindKey, string(p.Kind),
		log.InstanceIDKey, p.WorkflowInstanceID,
		"error", cause,
	)

	_, err := d.Run(ctx, func(ctx context.Context, u *state.Unit) error {
		if err := u.Claim(ctx, p); err != nil {
			return err
		}

		u.SetScope(p.Scope)

		inst, err := u.Load(ctx, p.WorkflowInstanceID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil
			}

			return err
		}

		span := u.Event(operation(p.Kind), audit.ResourceWorkflow, inst.Workflow.ID, inst.Workflow.WorkflowName, inst.Workflow.ID, map[string]any{
			audit.AttrError: cause.Error(),
		})
		span.State = audit.StateFailed

		return u.Within(span, func() error {
			return workflows.Fail(u, inst, workflowerrors.FromError(cause))
		})
	})
	if errors.Is(err, backend.ErrConcurrentModification) {
		return false, nil
	}

	return err == nil, err
}

// Apply performs the pending work within the unit.
func Apply(ctx context.Context, u *state.Unit, p *state.PendingWork) error {
	u.SetScope(p.Scope)

	inst, err := u.Load(ctx, p.WorkflowInstanceID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			u.Logger().Warn("pending work for unknown workflow instance",
				log.PendingWorkIDKey, p.ID,
				log.InstanceIDKey, p.WorkflowInstanceID,
			)

			return nil
		}

		return err
	}

	attrs := map[string]any{}
	if p.Child != nil {
		attrs["child.instance_id"] = p.Child.WorkflowInstanceID
		attrs["child.state"] = string(p.Child.State)
	}

	span := u.Event(operation(p.Kind), audit.ResourceWorkflow, inst.Workflow.ID, inst.Workflow.WorkflowName, inst.Workflow.ID, attrs)

	return u.Within(span, func() error {
		switch p.Kind {
		case state.PendingStartWorkflow:
			if inst.Workflow.State != core.WorkflowStateInitialized {
				return nil
			}

			return workflows.Start(u, inst)

		case state.PendingCancelWorkflow:
			return workflows.Cancel(u, inst)

		case state.PendingChildFinished:
			return composite.ChildFinished(ctx, u, inst, p.Child)
		}

		return fmt.Errorf("unknown pending work kind %q", p.Kind)
	})
}

func operation(kind state.PendingKind) string {
	return "scheduler." + string(kind)
}
