package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/routing"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/tester"
	"github.com/cschleiden/go-wfnet/internal/workflows"
	"github.com/cschleiden/go-wfnet/internal/workitems"
)

func newDriver(t *testing.T, defs ...*definition.WorkflowVersion) (*tester.Tester, *Driver) {
	ts := tester.New(t, defs...)
	return ts, NewDriver(ts.Backend, Options{State: ts.Options()})
}

func initialize(t *testing.T, d *Driver, name string) (string, string) {
	t.Helper()

	id := uuid.NewString()
	traceID := audit.NewTraceID()

	_, err := d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		u.SetScope(audit.Scope{TraceID: traceID})

		def, err := u.Resolve(name, "")
		if err != nil {
			return err
		}

		inst := u.CreateInstance(core.NewWorkflowInstance(id, def.Name, def.Version, traceID, u.Now()), def)

		return workflows.Start(u, inst)
	})
	require.NoError(t, err)

	return id, traceID
}

func load(t *testing.T, ts *tester.Tester, id string) *state.Instance {
	t.Helper()

	var inst *state.Instance
	err := ts.Backend.View(context.Background(), func(ctx context.Context, tx backend.Tx) error {
		var err error
		inst, err = state.Load(ctx, tx, id)
		return err
	})
	require.NoError(t, err)

	return inst
}

func spans(t *testing.T, ts *tester.Tester, traceID string) []*audit.Span {
	t.Helper()

	var r []*audit.Span
	err := ts.Backend.View(context.Background(), func(ctx context.Context, tx backend.Tx) error {
		var err error
		r, err = audit.Spans(ctx, tx, traceID)
		return err
	})
	require.NoError(t, err)

	return r
}

// work runs a work item for the current generation of the task from initialization to completion.
func work(t *testing.T, d *Driver, id, task string, route ...string) {
	t.Helper()

	_, err := d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		inst, err := u.Load(ctx, id)
		if err != nil {
			return err
		}

		u.SetScope(audit.Scope{TraceID: inst.Workflow.TraceID})

		wi, err := workitems.Initialize(u, inst, task, nil)
		if err != nil {
			return err
		}

		if err := workitems.Start(u, inst, wi); err != nil {
			return err
		}

		return workitems.Complete(u, inst, wi, nil, route)
	})
	require.NoError(t, err)
}

func Test_ANDJoinANDSplit(t *testing.T) {
	def := definition.New("andnet", "v1").
		Condition("start", "s1", "s2", "A", "B", "C", "D", "end").
		Task("fork", definition.From("start"), definition.To("s1", "s2"), definition.Dummy()).
		Task("a", definition.From("s1"), definition.To("A")).
		Task("b", definition.From("s2"), definition.To("B")).
		Task("T", definition.From("A", "B"), definition.To("C", "D")).
		MustBuild()

	ts, d := newDriver(t, def)
	id, _ := initialize(t, d, "andnet")

	inst := load(t, ts, id)
	require.Equal(t, core.TaskStateCompleted, inst.Task("fork").State)
	require.Equal(t, core.TaskStateEnabled, inst.Task("a").State)
	require.Equal(t, core.TaskStateEnabled, inst.Task("b").State)

	work(t, d, id, "a")

	inst = load(t, ts, id)
	require.Equal(t, 1, inst.Marking("A"))
	require.Equal(t, 0, inst.Marking("B"))
	require.Equal(t, core.TaskStateDisabled, inst.Task("T").State)

	work(t, d, id, "b")

	inst = load(t, ts, id)
	require.Equal(t, core.TaskStateEnabled, inst.Task("T").State)
	require.Equal(t, 0, inst.Marking("A"))
	require.Equal(t, 0, inst.Marking("B"))

	work(t, d, id, "T")

	inst = load(t, ts, id)
	require.Equal(t, core.TaskStateCompleted, inst.Task("T").State)
	require.Equal(t, 1, inst.Marking("C"))
	require.Equal(t, 1, inst.Marking("D"))
}

func Test_ReviseLoop(t *testing.T) {
	def := definition.New("revise", "v1").
		Condition("start", "rework", "end").
		Task("revise",
			definition.From("start", "rework"), definition.Join(core.JoinXOR),
			definition.To("rework", "end"), definition.Split(core.SplitXOR),
		).
		MustBuild()

	ts, d := newDriver(t, def)
	id, _ := initialize(t, d, "revise")

	work(t, d, id, "revise", "rework")

	inst := load(t, ts, id)
	require.Len(t, inst.TaskGenerations("revise"), 2)
	require.Equal(t, core.TaskStateCompleted, inst.TaskGeneration("revise", 1).State)

	gen2 := inst.Task("revise")
	require.Equal(t, 2, gen2.Generation)
	require.Equal(t, core.TaskStateEnabled, gen2.State)

	_, err := d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		inst, err := u.Load(ctx, id)
		if err != nil {
			return err
		}

		_, err = workitems.Initialize(u, inst, "revise", nil)
		return err
	})
	require.NoError(t, err)

	inst = load(t, ts, id)
	require.Len(t, inst.WorkItemsForTask("revise"), 2)

	current := routing.Current(inst, "revise")
	require.NotNil(t, current)
	require.Equal(t, 2, current.TaskGeneration)

	work2 := inst.WorkItemsForGeneration("revise", 1)
	require.Len(t, work2, 1)
	require.Equal(t, core.WorkItemStateCompleted, work2[0].State)
}

func Test_ORJoin_ConsumesAllTokens(t *testing.T) {
	def := definition.New("ornet", "v1").
		Condition("start", "s1", "s2", "s3", "c", "d", "end").
		Task("fork", definition.From("start"), definition.To("s1", "s2", "s3"), definition.Dummy()).
		Task("a", definition.From("s1"), definition.To("c")).
		Task("b", definition.From("s2"), definition.To("c")).
		Task("g", definition.From("s3"), definition.To("c")).
		Task("J", definition.From("c"), definition.Join(core.JoinOR), definition.To("d")).
		Task("close", definition.From("d"), definition.To("end")).
		MustBuild()

	ts, d := newDriver(t, def)
	id, _ := initialize(t, d, "ornet")

	work(t, d, id, "a")

	inst := load(t, ts, id)
	require.Equal(t, core.TaskStateEnabled, inst.Task("J").State)
	require.Equal(t, 1, inst.Task("J").Generation)
	require.Equal(t, 0, inst.Marking("c"))

	work(t, d, id, "b")
	work(t, d, id, "g")

	inst = load(t, ts, id)
	require.Equal(t, 2, inst.Marking("c"))
	require.Equal(t, 1, inst.Task("J").Generation)

	work(t, d, id, "J")

	inst = load(t, ts, id)
	require.Equal(t, 0, inst.Marking("c"))
	require.Equal(t, 2, inst.Task("J").Generation)
	require.Equal(t, core.TaskStateEnabled, inst.Task("J").State)

	work(t, d, id, "J")

	inst = load(t, ts, id)
	require.Equal(t, 0, inst.Marking("c"))
	require.Len(t, inst.TaskGenerations("J"), 2)
	require.Equal(t, core.TaskStateCompleted, inst.Task("J").State)
}

func Test_WorkflowCompletes(t *testing.T) {
	def := definition.New("simple", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()

	ts, d := newDriver(t, def)
	id, _ := initialize(t, d, "simple")

	work(t, d, id, "a")

	inst := load(t, ts, id)
	require.Equal(t, core.WorkflowStateCompleted, inst.Workflow.State)
}

func Test_CompositePropagation(t *testing.T) {
	parent := definition.New("parent", "v1").
		Condition("start", "end").
		Task("sub", definition.From("start"), definition.To("end"), definition.Composite("child", "v1")).
		MustBuild()

	child := definition.New("child", "v1").
		Condition("start", "end").
		Task("work", definition.From("start"), definition.To("end"), definition.AutoWorkItem()).
		MustBuild()

	ts, d := newDriver(t, parent, child)
	id, traceID := initialize(t, d, "parent")

	inst := load(t, ts, id)
	sub := inst.Task("sub")
	require.Equal(t, core.TaskStateStarted, sub.State)
	require.NotEmpty(t, sub.ChildWorkflowInstanceID)

	childID := sub.ChildWorkflowInstanceID
	require.Equal(t, core.WorkflowStateInitialized, load(t, ts, childID).Workflow.State)

	r, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, TickResult{Settled: true, Processed: 1}, r)

	ci := load(t, ts, childID)
	require.Equal(t, core.WorkflowStateStarted, ci.Workflow.State)
	require.Equal(t, traceID, ci.Workflow.TraceID)

	// The automatic work item is waiting for an actor
	items := ci.WorkItemsForTask("work")
	require.Len(t, items, 1)

	_, err = d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		inst, err := u.Load(ctx, childID)
		if err != nil {
			return err
		}

		u.SetScope(audit.Scope{TraceID: inst.Workflow.TraceID})

		wi := inst.WorkItem(items[0].ID)
		if err := workitems.Start(u, inst, wi); err != nil {
			return err
		}

		return workitems.Complete(u, inst, wi, nil, nil)
	})
	require.NoError(t, err)
	require.Equal(t, core.WorkflowStateCompleted, load(t, ts, childID).Workflow.State)

	r, err = d.Drain(context.Background(), traceID, 10)
	require.NoError(t, err)
	require.True(t, r.Settled)
	require.Equal(t, 1, r.Processed)

	inst = load(t, ts, id)
	require.Equal(t, core.TaskStateCompleted, inst.Task("sub").State)
	require.Equal(t, core.WorkflowStateCompleted, inst.Workflow.State)

	completions := 0
	for _, s := range spans(t, ts, traceID) {
		if s.Operation == "task.complete" && s.ResourceID == sub.ID() {
			completions++
		}
	}
	require.Equal(t, 1, completions)
}

func Test_Tick_Idempotent(t *testing.T) {
	def := definition.New("simple", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()

	ts, d := newDriver(t, def)
	_, traceID := initialize(t, d, "simple")

	before := len(spans(t, ts, traceID))

	for i := 0; i < 2; i++ {
		r, err := d.Tick(context.Background())
		require.NoError(t, err)
		require.Equal(t, TickResult{Settled: true}, r)
	}

	require.Len(t, spans(t, ts, traceID), before)
}

func Test_Settle_NoChangesOnSettledUnit(t *testing.T) {
	def := definition.New("simple", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()

	ts, d := newDriver(t, def)
	id, _ := initialize(t, d, "simple")

	unit, err := d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		_, err := u.Load(ctx, id)
		return err
	})
	require.NoError(t, err)
	require.Zero(t, unit.Recorder.Len())
	require.Equal(t, core.TaskStateEnabled, load(t, ts, id).Task("a").State)
}

func Test_Settle_DoesNotConverge(t *testing.T) {
	def := definition.New("spin", "v1").
		Condition("start", "loop", "end").
		Task("enter", definition.From("start"), definition.To("loop"), definition.Dummy()).
		Task("spin", definition.From("loop"), definition.To("loop", "end"), definition.Split(core.SplitXOR),
			definition.Dummy(), definition.DefaultRoute("loop")).
		MustBuild()

	ts := tester.New(t, def)
	d := NewDriver(ts.Backend, Options{State: ts.Options(), MaxSettleIterations: 10})

	_, err := d.Run(context.Background(), func(ctx context.Context, u *state.Unit) error {
		u.SetScope(audit.Scope{TraceID: audit.NewTraceID()})
		def, err := u.Resolve("spin", "v1")
		if err != nil {
			return err
		}

		inst := u.CreateInstance(core.NewWorkflowInstance("spin-1", "spin", "v1", "trace", u.Now()), def)

		return workflows.Start(u, inst)
	})
	require.ErrorContains(t, err, "did not settle")

	// Nothing was written
	err = ts.Backend.View(context.Background(), func(ctx context.Context, tx backend.Tx) error {
		_, err := state.Load(ctx, tx, "spin-1")
		return err
	})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func Test_Tick_FailsWorkflowOnUnprocessableWork(t *testing.T) {
	parent := definition.New("parent", "v1").
		Condition("start", "end").
		Task("sub", definition.From("start"), definition.To("end"), definition.Composite("child", "v1")).
		MustBuild()

	child := definition.New("child", "v1").
		Condition("start", "end").
		Task("route", definition.From("start"), definition.To("end"), definition.Dummy()).
		MustBuild()

	ts := tester.New(t, parent, child)
	ts.Router = func(ctx context.Context, req core.RouteRequest) ([]string, error) {
		if req.Child != nil {
			return nil, errors.New("router unavailable")
		}

		return nil, nil
	}

	d := NewDriver(ts.Backend, Options{State: ts.Options()})
	id, traceID := initialize(t, d, "parent")

	// Start the child, which completes right away, then deliver its completion
	r, err := d.Drain(context.Background(), traceID, 10)
	require.NoError(t, err)
	require.True(t, r.Settled)

	inst := load(t, ts, id)
	require.Equal(t, core.WorkflowStateFailed, inst.Workflow.State)
	require.Contains(t, inst.Workflow.Failure.Message, "router unavailable")
	require.Equal(t, core.TaskStateCanceled, inst.Task("sub").State)
}
