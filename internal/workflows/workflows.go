package workflows

import (
	"fmt"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/marking"
	"github.com/cschleiden/go-wfnet/internal/state"
)

// Start moves an initialized workflow instance to started and puts a token on its start condition.
func Start(u *state.Unit, inst *state.Instance) error {
	def, err := u.Definition(inst)
	if err != nil {
		return err
	}

	span, err := u.SetWorkflowState(inst, core.WorkflowStateStarted, nil)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		_, err := marking.Increment(u, inst, def.StartCondition, 1)
		return err
	})
}

// TryComplete completes a started workflow instance once its end condition is marked. Tasks still active at
// that point are canceled. It reports whether the instance completed.
func TryComplete(u *state.Unit, inst *state.Instance) (bool, error) {
	if inst.Workflow.State != core.WorkflowStateStarted {
		return false, nil
	}

	def, err := u.Definition(inst)
	if err != nil {
		return false, err
	}

	if inst.Marking(def.EndCondition) < 1 {
		return false, nil
	}

	span, err := u.SetWorkflowState(inst, core.WorkflowStateCompleted, nil)
	if err != nil {
		return false, err
	}

	err = u.Within(span, func() error {
		for _, t := range inst.ActiveTasks() {
			if err := enabler.CancelTask(u, inst, t); err != nil {
				return err
			}
		}

		notifyParent(u, inst)

		return nil
	})

	return err == nil, err
}

// Fail fails the workflow instance and cancels all of its unfinished tasks. Failing a finished instance is
// a no-op.
func Fail(u *state.Unit, inst *state.Instance, failure *core.Failure) error {
	return finish(u, inst, core.WorkflowStateFailed, failure)
}

// Cancel cancels the workflow instance, all of its unfinished tasks and, through pending work, its running
// sub-workflows. Canceling a finished instance is a no-op.
func Cancel(u *state.Unit, inst *state.Instance) error {
	return finish(u, inst, core.WorkflowStateCanceled, nil)
}

func finish(u *state.Unit, inst *state.Instance, to core.WorkflowState, failure *core.Failure) error {
	if inst.Workflow.State.Terminal() {
		return nil
	}

	span, err := u.SetWorkflowState(inst, to, failure)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		for _, t := range inst.Tasks {
			if err := enabler.CancelTask(u, inst, t); err != nil {
				return fmt.Errorf("canceling task %s: %w", t.ID(), err)
			}
		}

		notifyParent(u, inst)

		return nil
	})
}

// notifyParent signals the composite task of the parent instance that this sub-workflow finished.
func notifyParent(u *state.Unit, inst *state.Instance) {
	wi := inst.Workflow
	if wi.Parent == nil {
		return
	}

	u.Enqueue(state.PendingChildFinished, wi.Parent.WorkflowInstanceID, &state.ChildResult{
		WorkflowInstanceID: wi.ID,
		TaskName:           wi.Parent.TaskName,
		TaskGeneration:     wi.Parent.TaskGeneration,
		State:              wi.State,
		Failure:            wi.Failure,
	})
}
