package composite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/tester"
)

func defs() (*definition.WorkflowVersion, *definition.WorkflowVersion) {
	parent := definition.New("parent", "v1").
		Condition("start", "end").
		Task("sub", definition.From("start"), definition.To("end"), definition.Composite("child", "")).
		MustBuild()

	child := definition.New("child", "v1").
		Condition("start", "end").
		Task("work", definition.From("start"), definition.To("end")).
		MustBuild()

	return parent, child
}

func newTester(t *testing.T) *tester.Tester {
	parent, child := defs()
	return tester.New(t, parent, child)
}

func spawn(t *testing.T, ts *tester.Tester, u *state.Unit) (*state.Instance, *core.TaskInstance, *state.Instance) {
	inst := ts.Instance(u, "parent")

	d, _ := ts.Registry.Resolve("parent", "v1")
	td, _ := d.Task("sub")

	ti, err := enabler.TryEnable(u, inst, td)
	require.NoError(t, err)

	child, err := Spawn(u, inst, ti, td)
	require.NoError(t, err)

	return inst, ti, child
}

func Test_Spawn(t *testing.T) {
	ts := newTester(t)
	u := ts.Unit()

	inst, ti, child := spawn(t, ts, u)

	require.Equal(t, core.TaskStateStarted, ti.State)
	require.Equal(t, child.Workflow.ID, ti.ChildWorkflowInstanceID)

	require.Equal(t, core.WorkflowStateInitialized, child.Workflow.State)
	require.Equal(t, "child", child.Workflow.WorkflowName)
	require.Equal(t, "v1", child.Workflow.WorkflowVersion)
	require.Equal(t, inst.Workflow.TraceID, child.Workflow.TraceID)
	require.Equal(t, &core.ParentRef{WorkflowInstanceID: inst.Workflow.ID, TaskName: "sub", TaskGeneration: 1}, child.Workflow.Parent)

	pending := u.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, state.PendingStartWorkflow, pending[0].Kind)
	require.Equal(t, child.Workflow.ID, pending[0].WorkflowInstanceID)
}

func Test_ChildFinished_Completed(t *testing.T) {
	ts := newTester(t)

	var parentID, childID string
	ts.Update(func(ctx context.Context, u *state.Unit) error {
		inst, _, child := spawn(t, ts, u)
		parentID, childID = inst.Workflow.ID, child.Workflow.ID

		_, err := u.SetWorkflowState(child, core.WorkflowStateStarted, nil)
		require.NoError(t, err)
		_, err = u.SetWorkflowState(child, core.WorkflowStateCompleted, nil)
		return err
	})

	res := &state.ChildResult{WorkflowInstanceID: childID, TaskName: "sub", TaskGeneration: 1, State: core.WorkflowStateCompleted}

	ts.Update(func(ctx context.Context, u *state.Unit) error {
		inst, err := u.Load(ctx, parentID)
		require.NoError(t, err)

		require.NoError(t, ChildFinished(ctx, u, inst, res))
		require.Equal(t, core.TaskStateCompleted, inst.Task("sub").State)
		require.Equal(t, 1, inst.Marking("end"))

		// Delivered twice, applied once
		require.NoError(t, ChildFinished(ctx, u, inst, res))
		require.Equal(t, 1, inst.Marking("end"))

		return nil
	})
}

func Test_ChildFinished_Failed(t *testing.T) {
	ts := newTester(t)
	u := ts.Unit()

	inst, ti, child := spawn(t, ts, u)

	err := ChildFinished(context.Background(), u, inst, &state.ChildResult{
		WorkflowInstanceID: child.Workflow.ID,
		TaskName:           "sub",
		TaskGeneration:     1,
		State:              core.WorkflowStateFailed,
		Failure:            &core.Failure{Message: "boom"},
	})
	require.NoError(t, err)

	require.Equal(t, core.TaskStateFailed, ti.State)
	require.Equal(t, core.WorkflowStateFailed, inst.Workflow.State)
	require.Equal(t, SubWorkflowFailedType, inst.Workflow.Failure.Type)
	require.Contains(t, inst.Workflow.Failure.Message, "boom")
}

func Test_ChildFinished_Canceled(t *testing.T) {
	ts := newTester(t)
	u := ts.Unit()

	inst, ti, child := spawn(t, ts, u)
	pending := len(u.Pending())

	err := ChildFinished(context.Background(), u, inst, &state.ChildResult{
		WorkflowInstanceID: child.Workflow.ID,
		TaskName:           "sub",
		TaskGeneration:     1,
		State:              core.WorkflowStateCanceled,
	})
	require.NoError(t, err)

	require.Equal(t, core.TaskStateCanceled, ti.State)
	require.Equal(t, core.WorkflowStateStarted, inst.Workflow.State)

	// The child is not canceled a second time
	require.Len(t, u.Pending(), pending)
}

func Test_ChildFinished_IgnoresStaleGeneration(t *testing.T) {
	ts := newTester(t)
	u := ts.Unit()

	inst, ti, child := spawn(t, ts, u)
	spans := u.Recorder.Len()

	for _, res := range []*state.ChildResult{
		{WorkflowInstanceID: child.Workflow.ID, TaskName: "sub", TaskGeneration: 2, State: core.WorkflowStateCompleted},
		{WorkflowInstanceID: "other", TaskName: "sub", TaskGeneration: 1, State: core.WorkflowStateCompleted},
	} {
		require.NoError(t, ChildFinished(context.Background(), u, inst, res))
	}

	require.Equal(t, core.TaskStateStarted, ti.State)
	require.Equal(t, spans, u.Recorder.Len())
}
