package workflows

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/tester"
)

func def() *definition.WorkflowVersion {
	return definition.New("wf", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		Task("b", definition.From("start"), definition.To("end")).
		MustBuild()
}

func Test_Start(t *testing.T) {
	ts := tester.New(t, def())
	u := ts.Unit()

	d, err := ts.Registry.Resolve("wf", "v1")
	require.NoError(t, err)

	inst := u.CreateInstance(core.NewWorkflowInstance("wf-1", "wf", "v1", "trace", u.Now()), d)

	require.NoError(t, Start(u, inst))
	require.Equal(t, core.WorkflowStateStarted, inst.Workflow.State)
	require.Equal(t, 1, inst.Marking("start"))

	err = Start(u, inst)
	require.ErrorIs(t, err, core.ErrInvalidTransition)
}

func Test_TryComplete(t *testing.T) {
	ts := tester.New(t, def())
	u := ts.Unit()
	inst := ts.Instance(u, "wf")

	d, _ := ts.Registry.Resolve("wf", "v1")
	b, _ := d.Task("b")

	// b takes the only token
	ti, err := enabler.TryEnable(u, inst, b)
	require.NoError(t, err)

	done, err := TryComplete(u, inst)
	require.NoError(t, err)
	require.False(t, done)

	u.SetMarking(inst, inst.Condition("end"), 1, "increment")
	u.SetMarking(inst, inst.Condition("start"), 1, "increment")

	a, _ := d.Task("a")
	ta, err := enabler.TryEnable(u, inst, a)
	require.NoError(t, err)
	require.NotNil(t, ta)

	done, err = TryComplete(u, inst)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, core.WorkflowStateCompleted, inst.Workflow.State)
	require.NotNil(t, inst.Workflow.FinishedAt)

	// Tasks still active are canceled
	require.Equal(t, core.TaskStateCanceled, ti.State)
	require.Equal(t, core.TaskStateCanceled, ta.State)

	// Root instances have no parent to notify
	require.Empty(t, u.Pending())

	done, err = TryComplete(u, inst)
	require.NoError(t, err)
	require.False(t, done)
}

func Test_Cancel_NotifiesParent(t *testing.T) {
	ts := tester.New(t, def())
	u := ts.Unit()

	d, _ := ts.Registry.Resolve("wf", "v1")

	parent := core.NewWorkflowInstance("parent", "wf", "v1", "trace", u.Now())
	child := u.CreateInstance(core.NewSubWorkflowInstance("child", "wf", "v1", parent, core.ParentRef{
		WorkflowInstanceID: "parent",
		TaskName:           "a",
		TaskGeneration:     2,
	}, u.Now()), d)

	require.NoError(t, Start(u, child))
	require.NoError(t, Cancel(u, child))

	require.Equal(t, core.WorkflowStateCanceled, child.Workflow.State)
	for _, task := range child.Tasks {
		require.Equal(t, core.TaskStateCanceled, task.State)
	}

	pending := u.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, state.PendingChildFinished, pending[0].Kind)
	require.Equal(t, "parent", pending[0].WorkflowInstanceID)
	require.Equal(t, &state.ChildResult{
		WorkflowInstanceID: "child",
		TaskName:           "a",
		TaskGeneration:     2,
		State:              core.WorkflowStateCanceled,
	}, pending[0].Child)

	// Finished instances stay as they are
	require.NoError(t, Fail(u, child, &core.Failure{Message: "late"}))
	require.Equal(t, core.WorkflowStateCanceled, child.Workflow.State)
	require.Len(t, u.Pending(), 1)
}
