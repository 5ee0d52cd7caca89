package tester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/converter"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

// Outcome is how a mocked actor finishes a work item.
type Outcome struct {
	Result any
	Route  []string
	Err    error
	Cancel bool
}

// Complete completes the work item with the given result and routing decision.
func Complete(result any, route ...string) Outcome {
	return Outcome{Result: result, Route: route}
}

// Fail fails the work item.
func Fail(err error) Outcome {
	return Outcome{Err: err}
}

// Cancel cancels the work item.
func Cancel() Outcome {
	return Outcome{Cancel: true}
}

// WorkflowTester executes a workflow definition against an in-memory engine. Work items of work tasks are
// handed to mocked actors registered with OnWorkItem; work items of tasks without a mock are completed
// without a result.
type WorkflowTester struct {
	options *options

	wf *definition.WorkflowVersion

	clock    *clock.Mock
	registry *registry.Registry
	engine   *engine.Engine

	mock   mock.Mock
	mocked map[string]bool

	instanceID string
	handled    map[string]bool
}

func NewWorkflowTester(wf *definition.WorkflowVersion, opts ...WorkflowTesterOption) *WorkflowTester {
	options := &options{
		MaxSteps:  1000,
		Logger:    slog.Default(),
		Converter: converter.DefaultConverter,
	}

	for _, o := range opts {
		o(options)
	}

	c := clock.NewMock()
	c.Set(time.Now())

	r := registry.New()
	if err := r.Register(wf); err != nil {
		panic(fmt.Errorf("registering workflow: %w", err))
	}

	b := memory.NewMemoryBackend(
		backend.WithLogger(options.Logger),
		backend.WithClock(c),
		backend.WithConverter(options.Converter),
	)

	var engineOpts []engine.Option
	if options.Router != nil {
		engineOpts = append(engineOpts, engine.WithRouter(options.Router))
	}

	return &WorkflowTester{
		options:  options,
		wf:       wf,
		clock:    c,
		registry: r,
		engine:   engine.New(b, r, engineOpts...),
		mocked:   make(map[string]bool),
		handled:  make(map[string]bool),
	}
}

func (wt *WorkflowTester) Now() time.Time {
	return wt.clock.Now()
}

// Clock returns the mock clock timestamps are taken from.
func (wt *WorkflowTester) Clock() *clock.Mock {
	return wt.clock
}

// Registry returns the registry the workflow is registered in. Sub-workflows executed by composite tasks
// have to be registered before calling Execute.
func (wt *WorkflowTester) Registry() *registry.Registry {
	return wt.registry
}

func (wt *WorkflowTester) Engine() *engine.Engine {
	return wt.engine
}

// OnWorkItem mocks the actor of the named task. The mock is called with the work item and has to return
// an Outcome:
//
//	wt.OnWorkItem("review", mock.Anything).Return(tester.Complete(nil, "approved"))
func (wt *WorkflowTester) OnWorkItem(task string, args ...any) *mock.Call {
	wt.mocked[task] = true

	return wt.mock.On(task, args...)
}

// Execute starts the workflow and drives it until it reaches a terminal state. It panics when the workflow
// does not finish within the configured number of steps.
func (wt *WorkflowTester) Execute(ctx context.Context, opts ...engine.InitializeOption) {
	id, err := wt.engine.InitializeWorkflow(ctx, wt.wf.Name, wt.wf.Version, opts...)
	if err != nil {
		panic(fmt.Errorf("initializing workflow: %w", err))
	}

	wt.instanceID = id

	for step := 0; step < wt.options.MaxSteps; step++ {
		if wt.WorkflowFinished() {
			return
		}

		progressed, err := wt.step(ctx)
		if err != nil {
			panic(err)
		}

		if !progressed {
			break
		}

		wt.clock.Add(time.Second)
	}

	if !wt.WorkflowFinished() {
		panic(fmt.Sprintf("workflow %s did not finish", wt.wf.Name))
	}
}

// step handles every open work item of the workflow tree once. It reports whether anything happened.
func (wt *WorkflowTester) step(ctx context.Context) (bool, error) {
	instances, err := wt.tree(ctx)
	if err != nil {
		return false, err
	}

	progressed := false

	for _, id := range instances {
		d, err := wt.engine.GetWorkflowInstanceDetails(ctx, id)
		if err != nil {
			return false, err
		}

		if d.Workflow.State != core.WorkflowStateStarted {
			continue
		}

		for _, ti := range d.Tasks {
			if ti.State != core.TaskStateEnabled || ti.Composite || hasWorkItem(d.WorkItems, ti) {
				continue
			}

			if _, err := wt.engine.InitializeWorkItem(ctx, engine.WorkItemTarget{
				ParentWorkflowInstanceID: id,
				ParentTaskName:           ti.Name,
			}, nil); err != nil {
				return false, fmt.Errorf("initializing work item for %s: %w", ti.ID(), err)
			}

			progressed = true
		}

		items, err := wt.engine.GetWorkflowInstanceDetails(ctx, id)
		if err != nil {
			return false, err
		}

		for _, wi := range items.WorkItems {
			if wi.State.Terminal() || wt.handled[wi.ID] {
				continue
			}

			if err := wt.handle(ctx, wi); err != nil {
				return false, err
			}

			progressed = true
		}
	}

	for {
		r, err := wt.engine.RunSchedulerTick(ctx)
		if err != nil {
			return false, err
		}

		if r.Processed > 0 {
			progressed = true
		}

		if r.Settled {
			break
		}
	}

	return progressed, nil
}

func (wt *WorkflowTester) handle(ctx context.Context, wi *core.WorkItem) error {
	wt.handled[wi.ID] = true

	var outcome Outcome
	if wt.mocked[wi.TaskName] {
		ret := wt.mock.MethodCalled(wi.TaskName, wi)
		outcome = ret.Get(0).(Outcome)
	}

	if outcome.Cancel {
		return ignoreGone(wt.engine.CancelWorkItem(ctx, wi.ID))
	}

	if wi.State == core.WorkItemStateInitialized {
		if err := wt.engine.StartWorkItem(ctx, wi.ID); err != nil {
			return ignoreGone(err)
		}
	}

	if outcome.Err != nil {
		return ignoreGone(wt.engine.FailWorkItem(ctx, wi.ID, outcome.Err))
	}

	return ignoreGone(wt.engine.CompleteWorkItem(ctx, wi.ID, outcome.Result, engine.WithRoute(outcome.Route...)))
}

// ignoreGone drops errors of work items that were canceled by an earlier work item of the same step.
func ignoreGone(err error) error {
	if errors.Is(err, core.ErrInvalidTransition) || errors.Is(err, core.ErrTaskNotEnabled) {
		return nil
	}

	return err
}

// tree returns the ids of the workflow instance and all of its sub-workflows, parents first.
func (wt *WorkflowTester) tree(ctx context.Context) ([]string, error) {
	ids := []string{wt.instanceID}

	for i := 0; i < len(ids); i++ {
		children, err := wt.engine.GetChildWorkflowInstances(ctx, ids[i], "")
		if err != nil {
			return nil, err
		}

		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}

	return ids, nil
}

func hasWorkItem(items []*core.WorkItem, ti *core.TaskInstance) bool {
	for _, wi := range items {
		if wi.TaskName == ti.Name && wi.TaskGeneration == ti.Generation {
			return true
		}
	}

	return false
}

// InstanceID returns the id of the workflow instance started by Execute.
func (wt *WorkflowTester) InstanceID() string {
	return wt.instanceID
}

func (wt *WorkflowTester) WorkflowInstance() *core.WorkflowInstance {
	wf, err := wt.engine.GetWorkflowInstance(context.Background(), wt.instanceID)
	if err != nil {
		panic(err)
	}

	return wf
}

func (wt *WorkflowTester) WorkflowFinished() bool {
	return wt.WorkflowInstance().State.Terminal()
}

// WorkflowResult returns the terminal state of the workflow and its failure, if any.
func (wt *WorkflowTester) WorkflowResult() (core.WorkflowState, error) {
	wf := wt.WorkflowInstance()
	if wf.Failure != nil {
		return wf.State, wf.Failure
	}

	return wf.State, nil
}

func (wt *WorkflowTester) AssertExpectations(t mock.TestingT) {
	wt.mock.AssertExpectations(t)
}
