package workitems

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/tester"
	"github.com/cschleiden/go-wfnet/internal/workflowerrors"
)

func review() *definition.WorkflowVersion {
	return definition.New("review", "v1").
		Condition("start", "decided", "end").
		Task("review", definition.From("start"), definition.To("decided", "end"), definition.Split(core.SplitXOR)).
		Task("archive", definition.From("decided"), definition.To("end"), definition.Dummy()).
		MustBuild()
}

func setup(t *testing.T) (*tester.Tester, *state.Unit, *state.Instance) {
	def := review()
	ts := tester.New(t, def)
	u := ts.Unit()
	inst := ts.Instance(u, "review")

	td, _ := def.Task("review")
	_, err := enabler.TryEnable(u, inst, td)
	require.NoError(t, err)

	return ts, u, inst
}

func Test_Initialize_RequiresEnabledTask(t *testing.T) {
	def := review()
	ts := tester.New(t, def)
	u := ts.Unit()
	inst := ts.Instance(u, "review")

	_, err := Initialize(u, inst, "review", nil)
	require.ErrorIs(t, err, core.ErrTaskNotEnabled)

	_, err = Initialize(u, inst, "archive", nil)
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = Initialize(u, inst, "unknown", nil)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func Test_Lifecycle(t *testing.T) {
	_, u, inst := setup(t)

	wi, err := Initialize(u, inst, "review", []byte(`{"doc":1}`))
	require.NoError(t, err)
	require.Equal(t, core.WorkItemStateInitialized, wi.State)
	require.Equal(t, 1, wi.TaskGeneration)

	// Only started work items can complete
	err = Complete(u, inst, wi, nil, []string{"end"})
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	require.NoError(t, Start(u, inst, wi))
	require.Equal(t, core.TaskStateStarted, inst.Task("review").State)

	err = Start(u, inst, wi)
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	// The split needs a decision, nothing changes without one
	err = Complete(u, inst, wi, nil, nil)
	require.ErrorIs(t, err, core.ErrRoutingDecisionRequired)
	require.Equal(t, core.WorkItemStateStarted, wi.State)

	err = Complete(u, inst, wi, nil, []string{"nowhere"})
	require.ErrorIs(t, err, core.ErrInvalidSplitSelection)

	require.NoError(t, Complete(u, inst, wi, []byte(`"ok"`), []string{"end"}))
	require.Equal(t, core.WorkItemStateCompleted, wi.State)
	require.Equal(t, []string{"end"}, wi.Route)
	require.Equal(t, core.TaskStateCompleted, inst.Task("review").State)
	require.Equal(t, 1, inst.Marking("end"))
	require.Equal(t, 0, inst.Marking("decided"))
}

func Test_Complete_WaitsForLastActiveItem(t *testing.T) {
	_, u, inst := setup(t)

	first, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)
	second, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)

	require.NoError(t, Start(u, inst, first))
	require.NoError(t, Start(u, inst, second))

	require.NoError(t, Complete(u, inst, first, nil, []string{"decided"}))
	require.Equal(t, core.TaskStateStarted, inst.Task("review").State)
	require.Equal(t, 0, inst.Marking("decided"))

	// The last item completes the task with the decision of the earlier one
	require.NoError(t, Complete(u, inst, second, nil, nil))
	require.Equal(t, core.TaskStateCompleted, inst.Task("review").State)
	require.Equal(t, 1, inst.Marking("decided"))
}

func Test_Fail_FailsTaskAndWorkflow(t *testing.T) {
	_, u, inst := setup(t)

	wi, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)
	other, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)
	require.NoError(t, Start(u, inst, wi))

	failure := workflowerrors.FromError(errors.New("rejected"))
	require.NoError(t, Fail(u, inst, wi, failure))

	require.Equal(t, core.WorkItemStateFailed, wi.State)
	require.Equal(t, "rejected", wi.Failure.Message)
	require.Equal(t, core.WorkItemStateCanceled, other.State)
	require.Equal(t, core.TaskStateFailed, inst.Task("review").State)
	require.Equal(t, core.WorkflowStateFailed, inst.Workflow.State)
	require.Equal(t, "rejected", inst.Workflow.Failure.Message)
}

func Test_Cancel(t *testing.T) {
	t.Run("enabled task stays enabled", func(t *testing.T) {
		_, u, inst := setup(t)

		wi, err := Initialize(u, inst, "review", nil)
		require.NoError(t, err)

		require.NoError(t, Cancel(u, inst, wi))
		require.Equal(t, core.WorkItemStateCanceled, wi.State)
		require.Equal(t, core.TaskStateEnabled, inst.Task("review").State)
	})

	t.Run("last active item cancels started task", func(t *testing.T) {
		_, u, inst := setup(t)

		wi, err := Initialize(u, inst, "review", nil)
		require.NoError(t, err)
		require.NoError(t, Start(u, inst, wi))

		require.NoError(t, Cancel(u, inst, wi))
		require.Equal(t, core.TaskStateCanceled, inst.Task("review").State)
	})

	t.Run("last active item completes task after completed sibling", func(t *testing.T) {
		_, u, inst := setup(t)

		first, err := Initialize(u, inst, "review", nil)
		require.NoError(t, err)
		second, err := Initialize(u, inst, "review", nil)
		require.NoError(t, err)
		require.NoError(t, Start(u, inst, first))
		require.NoError(t, Start(u, inst, second))
		require.NoError(t, Complete(u, inst, first, nil, []string{"end"}))

		require.NoError(t, Cancel(u, inst, second))
		require.Equal(t, core.TaskStateCompleted, inst.Task("review").State)
		require.Equal(t, 1, inst.Marking("end"))
	})

	t.Run("finished items cannot be canceled", func(t *testing.T) {
		_, u, inst := setup(t)

		wi, err := Initialize(u, inst, "review", nil)
		require.NoError(t, err)
		require.NoError(t, Start(u, inst, wi))
		require.NoError(t, Complete(u, inst, wi, nil, []string{"end"}))

		err = Cancel(u, inst, wi)
		require.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func Test_Initialize_OrdersBySequence(t *testing.T) {
	ts, u, inst := setup(t)

	first, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)

	ts.Clock.Add(time.Second)

	second, err := Initialize(u, inst, "review", nil)
	require.NoError(t, err)

	require.Less(t, first.Sequence, second.Sequence)
	require.True(t, second.CreatedAt.After(first.CreatedAt))
}
