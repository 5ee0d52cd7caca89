package engine

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/converter"
	"github.com/cschleiden/go-wfnet/internal/instancecache"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/scheduler"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/metrics"
	"github.com/cschleiden/go-wfnet/registry"
)

// TickResult describes the outcome of a scheduler tick.
type TickResult = scheduler.TickResult

// Engine executes workflow nets. It holds no state besides the registry of definitions: every operation
// runs as a single transaction against the backend.
type Engine struct {
	backend  backend.Backend
	registry *registry.Registry
	driver   *scheduler.Driver
	cache    *instancecache.Cache

	options   Options
	clock     clock.Clock
	logger    *slog.Logger
	metrics   metrics.Client
	tracer    trace.Tracer
	converter converter.Converter
}

func New(b backend.Backend, r *registry.Registry, opts ...Option) *Engine {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		backend:   b,
		registry:  r,
		options:   options,
		clock:     b.Options().Clock,
		logger:    b.Logger(),
		metrics:   b.Metrics(),
		tracer:    b.Tracer(),
		converter: b.Options().Converter,
	}

	so := state.Options{
		Clock:    e.clock,
		Logger:   e.logger,
		Resolver: r,
		Router:   options.Router,
	}

	if options.InstanceCacheSize > 0 {
		e.cache = instancecache.New(e.metrics, options.InstanceCacheSize, options.InstanceCacheExpiration)
		so.Cache = e.cache
	}

	e.driver = scheduler.NewDriver(b, scheduler.Options{
		State:               so,
		BatchSize:           options.TickBatchSize,
		MaxSettleIterations: options.MaxSettleIterations,
		OnCommit:            e.committed,
	})

	return e
}

func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) Backend() backend.Backend {
	return e.backend
}

// StartCacheEviction removes expired entries from the instance cache until ctx is canceled.
func (e *Engine) StartCacheEviction(ctx context.Context) {
	if e.cache == nil {
		<-ctx.Done()
		return
	}

	e.cache.StartEviction(ctx)
}

// RunSchedulerTick processes one batch of pending automatic work. Callers needing a fully settled net call
// it until it reports Settled.
func (e *Engine) RunSchedulerTick(ctx context.Context) (TickResult, error) {
	return e.driver.Tick(ctx)
}

// cascade drains the pending work the event caused in its workflow tree.
func (e *Engine) cascade(ctx context.Context, traceID string) {
	if !e.options.SynchronousCascade || traceID == "" {
		return
	}

	r, err := e.driver.Drain(ctx, traceID, e.options.MaxCascadeTicks)
	if err != nil {
		e.logger.Error("draining pending work", log.TraceIDKey, traceID, "error", err)
		return
	}

	if !r.Settled {
		e.logger.Debug("pending work left for later ticks", log.TraceIDKey, traceID, log.ProcessedKey, r.Processed)
	}
}

// event runs an external event against a workflow instance in one transaction. The event opens a new root
// span in the trace of the instance; all transitions it causes are recorded beneath it.
func (e *Engine) event(ctx context.Context, instanceID string, entry audit.Entry, fn func(ctx context.Context, u *state.Unit, inst *state.Instance) error) error {
	var traceID string

	_, err := e.driver.Run(ctx, func(ctx context.Context, u *state.Unit) error {
		inst, err := u.Load(ctx, instanceID)
		if err != nil {
			return err
		}

		traceID = inst.Workflow.TraceID
		u.SetScope(audit.Scope{TraceID: traceID})

		if entry.ResourceID == "" {
			entry.ResourceType = audit.ResourceWorkflow
			entry.ResourceID = inst.Workflow.ID
			entry.ResourceName = inst.Workflow.WorkflowName
		}
		entry.OperationType = audit.OperationEvent
		entry.WorkflowInstanceID = inst.Workflow.ID

		span := u.Recorder.Record(entry)

		return u.Within(span, func() error {
			return fn(ctx, u, inst)
		})
	})
	if err != nil {
		return err
	}

	e.cascade(ctx, traceID)

	return nil
}
