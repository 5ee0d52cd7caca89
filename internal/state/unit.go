package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/registry"
)

// Cache provides previously saved aggregates. Implementations return a copy the caller may mutate.
type Cache interface {
	Get(id string, version int64) (*Instance, bool)
}

type Options struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Resolver registry.Resolver

	// Router supplies routing decisions for automatic completions, optional.
	Router core.Router

	// Cache is consulted before loading aggregates from the backend, optional.
	Cache Cache
}

// Unit is the working set of one transaction: the aggregates loaded and created, the pending work
// enqueued, and the spans recorded. Nothing is written until Commit.
type Unit struct {
	tx      backend.Tx
	options Options

	Recorder *audit.Recorder

	instances map[string]*Instance
	order     []*Instance

	pending []*PendingWork
}

func NewUnit(tx backend.Tx, opts Options) *Unit {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Unit{
		tx:        tx,
		options:   opts,
		Recorder:  audit.NewRecorder(opts.Clock, audit.Scope{}),
		instances: make(map[string]*Instance),
	}
}

func (u *Unit) Tx() backend.Tx {
	return u.tx
}

func (u *Unit) Now() time.Time {
	return u.options.Clock.Now()
}

func (u *Unit) Logger() *slog.Logger {
	return u.options.Logger
}

// SetScope moves the recorder to the given scope, e.g. the root of a trace.
func (u *Unit) SetScope(s audit.Scope) {
	u.Recorder.SetScope(s)
}

// Event records the root span of an external event or a unit of pending work.
func (u *Unit) Event(operation string, rt audit.ResourceType, resourceID, resourceName, workflowInstanceID string, attrs map[string]any) *audit.Span {
	return u.Recorder.Record(audit.Entry{
		Operation:          operation,
		OperationType:      audit.OperationEvent,
		ResourceType:       rt,
		ResourceID:         resourceID,
		ResourceName:       resourceName,
		WorkflowInstanceID: workflowInstanceID,
		Attributes:         attrs,
	})
}

// Custom records a span carrying caller supplied attributes.
func (u *Unit) Custom(workflowInstanceID string, attrs map[string]any) *audit.Span {
	return u.Recorder.Record(audit.Entry{
		Operation:          "custom",
		OperationType:      audit.OperationCustom,
		ResourceType:       audit.ResourceCustom,
		WorkflowInstanceID: workflowInstanceID,
		Attributes:         attrs,
	})
}

// Within records all spans created by fn as children of span.
func (u *Unit) Within(span *audit.Span, fn func() error) error {
	return u.Recorder.Within(span, fn)
}

// Load returns the aggregate of the given workflow instance. Aggregates are loaded once per unit.
func (u *Unit) Load(ctx context.Context, id string) (*Instance, error) {
	if inst, ok := u.instances[id]; ok {
		return inst, nil
	}

	var inst *Instance

	r, err := u.tx.Get(ctx, KindInstance, id)
	if err != nil {
		return nil, notFound(err, "workflow instance", id)
	}

	if u.options.Cache != nil {
		if cached, ok := u.options.Cache.Get(id, r.Version); ok {
			inst = cached
		}
	}

	if inst == nil {
		inst, err = loadFrom(ctx, u.tx, r)
		if err != nil {
			return nil, err
		}
	}

	u.add(inst)

	return inst, nil
}

// Instances returns all aggregates of the unit in the order they were loaded or created.
func (u *Unit) Instances() []*Instance {
	return u.order
}

func (u *Unit) add(inst *Instance) {
	u.instances[inst.Workflow.ID] = inst
	u.order = append(u.order, inst)
}

// CreateInstance adds a new workflow instance executing def. All tasks start out disabled at generation 1,
// all conditions unmarked.
func (u *Unit) CreateInstance(wi *core.WorkflowInstance, def *definition.WorkflowVersion) *Instance {
	inst := newInstance(wi)

	taskNames := make([]string, 0, len(def.Tasks))
	for i := range def.Tasks {
		inst.Tasks = append(inst.Tasks, newTaskInstance(wi.ID, &def.Tasks[i], 1))
		taskNames = append(taskNames, def.Tasks[i].Name)
	}

	conditionNames := make([]string, 0, len(def.Conditions))
	for _, c := range def.Conditions {
		inst.Conditions = append(inst.Conditions, &core.ConditionInstance{WorkflowInstanceID: wi.ID, Name: c.Name})
		conditionNames = append(conditionNames, c.Name)
	}

	attrs := map[string]any{
		audit.AttrWorkflowName: wi.WorkflowName,
		audit.AttrVersion:      wi.WorkflowVersion,
		audit.AttrStateNew:     string(wi.State),
		audit.AttrTasks:        taskNames,
		audit.AttrConditions:   conditionNames,
	}
	if wi.Parent != nil {
		attrs[audit.AttrParentInstance] = wi.Parent.WorkflowInstanceID
	}

	u.Recorder.Record(audit.Entry{
		Operation:          "workflow.create",
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceWorkflow,
		ResourceID:         wi.ID,
		ResourceName:       wi.WorkflowName,
		WorkflowInstanceID: wi.ID,
		Attributes:         attrs,
	})

	u.options.Logger.Debug("created workflow instance",
		log.InstanceIDKey, wi.ID,
		log.WorkflowNameKey, wi.WorkflowName,
		log.WorkflowVersionKey, wi.WorkflowVersion,
		log.TraceIDKey, wi.TraceID,
	)

	u.add(inst)

	return inst
}

func newTaskInstance(workflowInstanceID string, t *definition.Task, generation int) *core.TaskInstance {
	return &core.TaskInstance{
		WorkflowInstanceID: workflowInstanceID,
		Name:               t.Name,
		Generation:         generation,
		State:              core.TaskStateDisabled,
		Join:               t.Join,
		Split:              t.Split,
		Inputs:             append([]string(nil), t.Inputs...),
		Outputs:            append([]string(nil), t.Outputs...),
		Composite:          t.Kind == definition.KindComposite,
	}
}

// Definition resolves the workflow version the instance executes.
func (u *Unit) Definition(inst *Instance) (*definition.WorkflowVersion, error) {
	return u.Resolve(inst.Workflow.WorkflowName, inst.Workflow.WorkflowVersion)
}

func (u *Unit) Resolve(name, version string) (*definition.WorkflowVersion, error) {
	if u.options.Resolver == nil {
		return nil, fmt.Errorf("resolving workflow %s@%s: no registry: %w", name, version, core.ErrNotFound)
	}

	return u.options.Resolver.Resolve(name, version)
}

// TaskDefinition returns the definition of the named task of the instance.
func (u *Unit) TaskDefinition(inst *Instance, name string) (*definition.Task, error) {
	def, err := u.Definition(inst)
	if err != nil {
		return nil, err
	}

	t, ok := def.Task(name)
	if !ok {
		return nil, fmt.Errorf("task %q of workflow %s@%s: %w", name, def.Name, def.Version, core.ErrNotFound)
	}

	return t, nil
}

// Route returns the routing decision for an automatic completion of the task: the router's decision if
// one is configured and decides, otherwise the default route of the task definition.
func (u *Unit) Route(ctx context.Context, inst *Instance, task *core.TaskInstance, child *core.WorkflowInstance) ([]string, error) {
	if u.options.Router != nil {
		route, err := u.options.Router(ctx, core.RouteRequest{
			Workflow: inst.Workflow,
			Task:     task,
			Child:    child,
		})
		if err != nil {
			return nil, fmt.Errorf("routing task %s: %w", task.ID(), err)
		}

		if len(route) > 0 {
			return route, nil
		}
	}

	t, err := u.TaskDefinition(inst, task.Name)
	if err != nil {
		return nil, err
	}

	return t.DefaultRoute, nil
}

// Enqueue adds pending work for the given workflow instance, caused by the current span.
func (u *Unit) Enqueue(kind PendingKind, workflowInstanceID string, child *ChildResult) *PendingWork {
	p := &PendingWork{
		ID:                 uuid.NewString(),
		Kind:               kind,
		WorkflowInstanceID: workflowInstanceID,
		Child:              child,
		Scope:              u.Recorder.Scope(),
		CreatedAt:          u.Now(),
	}

	u.pending = append(u.pending, p)

	u.options.Logger.Debug("enqueued pending work",
		log.PendingWorkIDKey, p.ID,
		log.PendingWorkKindKey, string(kind),
		log.InstanceIDKey, workflowInstanceID,
	)

	return p
}

// Pending returns the work enqueued in this unit.
func (u *Unit) Pending() []*PendingWork {
	return u.pending
}

// Claim removes the pending work. The commit fails with a conflict if another unit claimed it first.
func (u *Unit) Claim(ctx context.Context, p *PendingWork) error {
	return u.tx.Delete(ctx, KindPending, p.ID, p.version)
}

// Commit buffers all changes of the unit in its transaction.
func (u *Unit) Commit(ctx context.Context) error {
	for _, inst := range u.order {
		if _, err := inst.Save(ctx, u.tx); err != nil {
			return err
		}
	}

	for _, p := range u.pending {
		if err := putPending(ctx, u.tx, p); err != nil {
			return err
		}
	}

	return audit.Write(ctx, u.tx, u.Recorder.Spans())
}

func notFound(err error, what, id string) error {
	if errors.Is(err, backend.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}

	return fmt.Errorf("getting %s %s: %w", what, id, err)
}
