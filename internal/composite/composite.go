package composite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflowerrors"
	"github.com/cschleiden/go-wfnet/internal/workflows"
)

const SubWorkflowFailedType = "SubWorkflowFailed"

// Spawn creates the sub-workflow of an enabled composite task. The task is started and holds a reference
// to the new instance, which is started through pending work.
func Spawn(u *state.Unit, inst *state.Instance, ti *core.TaskInstance, t *definition.Task) (*state.Instance, error) {
	if t.Workflow == nil {
		return nil, fmt.Errorf("task %s does not reference a sub-workflow: %w", ti.ID(), core.ErrInvalidTransition)
	}

	def, err := u.Resolve(t.Workflow.Name, t.Workflow.Version)
	if err != nil {
		return nil, fmt.Errorf("spawning sub-workflow for task %s: %w", ti.ID(), err)
	}

	span, err := enabler.StartTask(u, inst, ti)
	if err != nil {
		return nil, err
	}

	wi := core.NewSubWorkflowInstance(uuid.NewString(), def.Name, def.Version, inst.Workflow, core.ParentRef{
		WorkflowInstanceID: inst.Workflow.ID,
		TaskName:           ti.Name,
		TaskGeneration:     ti.Generation,
	}, u.Now())

	ti.ChildWorkflowInstanceID = wi.ID

	var child *state.Instance
	err = u.Within(span, func() error {
		child = u.CreateInstance(wi, def)
		u.Enqueue(state.PendingStartWorkflow, wi.ID, nil)

		return nil
	})

	return child, err
}

// ChildFinished applies the outcome of a sub-workflow to the composite task that spawned it. Outcomes for
// generations that are no longer started, or for another child, are ignored.
func ChildFinished(ctx context.Context, u *state.Unit, inst *state.Instance, res *state.ChildResult) error {
	if res == nil {
		return fmt.Errorf("child result missing for workflow instance %s: %w", inst.Workflow.ID, core.ErrInvalidTransition)
	}

	ti := inst.TaskGeneration(res.TaskName, res.TaskGeneration)
	if ti == nil || ti.State != core.TaskStateStarted || ti.ChildWorkflowInstanceID != res.WorkflowInstanceID || inst.Workflow.State.Terminal() {
		u.Logger().Debug("ignoring outcome of sub-workflow",
			log.InstanceIDKey, inst.Workflow.ID,
			log.TaskNameKey, res.TaskName,
			log.TaskGenerationKey, res.TaskGeneration,
			log.WorkflowStateKey, string(res.State),
		)

		return nil
	}

	switch res.State {
	case core.WorkflowStateCompleted:
		child, err := state.GetWorkflowInstance(ctx, u.Tx(), res.WorkflowInstanceID)
		if err != nil {
			return err
		}

		route, err := u.Route(ctx, inst, ti, child)
		if err != nil {
			return err
		}

		return enabler.CompleteTask(u, inst, ti, route)

	case core.WorkflowStateFailed:
		if err := enabler.FailTask(u, inst, ti); err != nil {
			return err
		}

		msg := fmt.Sprintf("sub-workflow %s of task %s failed", res.WorkflowInstanceID, ti.ID())
		if res.Failure != nil {
			msg += ": " + res.Failure.Message
		}

		return workflows.Fail(u, inst, workflowerrors.FromMessage(SubWorkflowFailedType, msg))

	case core.WorkflowStateCanceled:
		// The child is already canceled, only the task is left
		_, err := u.SetTaskState(inst, ti, core.TaskStateCanceled)
		return err
	}

	return fmt.Errorf("sub-workflow %s is %s: %w", res.WorkflowInstanceID, res.State, core.ErrInvalidTransition)
}
