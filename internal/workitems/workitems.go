package workitems

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/routing"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflows"
)

// Initialize creates a work item bound to the current generation of the named task. The task has to be
// enabled or started; several actors may work on the same generation.
func Initialize(u *state.Unit, inst *state.Instance, taskName string, payload json.RawMessage) (*core.WorkItem, error) {
	if inst.Workflow.State != core.WorkflowStateStarted {
		return nil, fmt.Errorf("workflow instance %s is %s: %w", inst.Workflow.ID, inst.Workflow.State, core.ErrTaskNotEnabled)
	}

	def, err := u.TaskDefinition(inst, taskName)
	if err != nil {
		return nil, err
	}

	if def.Kind != definition.KindWork {
		return nil, fmt.Errorf("task %q is a %s task and takes no work items: %w", taskName, def.Kind, core.ErrInvalidTransition)
	}

	if err := enabler.CheckStartable(inst, taskName); err != nil {
		return nil, err
	}

	wi, _ := u.AddWorkItem(inst, inst.Task(taskName), uuid.NewString(), payload)

	return wi, nil
}

// Auto creates the work item of a task that declares automatic work items.
func Auto(u *state.Unit, inst *state.Instance, ti *core.TaskInstance) *core.WorkItem {
	wi, _ := u.AddWorkItem(inst, ti, uuid.NewString(), nil)
	return wi
}

// Start starts the work item. The first started work item claims its task.
func Start(u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
	if !wi.State.CanTransitionTo(core.WorkItemStateStarted) {
		return fmt.Errorf("work item %s is %s: %w", wi.ID, wi.State, core.ErrInvalidTransition)
	}

	ti, err := task(inst, wi)
	if err != nil {
		return err
	}

	span, err := u.SetWorkItemState(inst, wi, core.WorkItemStateStarted)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		_, err := enabler.StartTask(u, inst, ti)
		return err
	})
}

// Complete completes a started work item. If no other work item of the task generation is still active,
// the task completes as well, with the given route or, if none is given, the route of the work item of
// the generation that completed last.
func Complete(u *state.Unit, inst *state.Instance, wi *core.WorkItem, result json.RawMessage, route []string) error {
	if !wi.State.CanTransitionTo(core.WorkItemStateCompleted) {
		return fmt.Errorf("work item %s is %s: %w", wi.ID, wi.State, core.ErrInvalidTransition)
	}

	ti, err := task(inst, wi)
	if err != nil {
		return err
	}

	if len(route) > 0 {
		if _, err := enabler.Split(ti, route); err != nil {
			return err
		}
	}

	last := !otherActive(inst, wi)

	taskRoute := route
	if last {
		if len(taskRoute) == 0 {
			taskRoute = routing.LastRoute(inst.WorkItemsForGeneration(ti.Name, ti.Generation))
		}

		// Fail before changing anything if the task cannot complete
		if _, err := enabler.Split(ti, taskRoute); err != nil {
			return err
		}
	}

	wi.Result = result
	wi.Route = route

	span, err := u.SetWorkItemState(inst, wi, core.WorkItemStateCompleted)
	if err != nil {
		return err
	}

	if !last {
		return nil
	}

	return u.Within(span, func() error {
		return enabler.CompleteTask(u, inst, ti, taskRoute)
	})
}

// Fail fails a started work item. Its task and the workflow instance fail with it.
func Fail(u *state.Unit, inst *state.Instance, wi *core.WorkItem, failure *core.Failure) error {
	if !wi.State.CanTransitionTo(core.WorkItemStateFailed) {
		return fmt.Errorf("work item %s is %s: %w", wi.ID, wi.State, core.ErrInvalidTransition)
	}

	ti, err := task(inst, wi)
	if err != nil {
		return err
	}

	wi.Failure = failure

	span, err := u.SetWorkItemState(inst, wi, core.WorkItemStateFailed)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		if err := enabler.FailTask(u, inst, ti); err != nil {
			return err
		}

		return workflows.Fail(u, inst, failure)
	})
}

// Cancel cancels an unfinished work item. If it was the last active work item of a started task, the task
// completes when another work item of the generation completed and is canceled otherwise.
func Cancel(u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
	ti := inst.TaskGeneration(wi.TaskName, wi.TaskGeneration)
	if ti == nil {
		return fmt.Errorf("task %s: %w", core.TaskInstanceID(wi.WorkflowInstanceID, wi.TaskName, wi.TaskGeneration), core.ErrNotFound)
	}

	var (
		finishTask bool
		route      []string
		completed  bool
	)

	if ti.State == core.TaskStateStarted && !otherActive(inst, wi) {
		finishTask = true

		for _, sibling := range inst.WorkItemsForGeneration(ti.Name, ti.Generation) {
			if sibling.State == core.WorkItemStateCompleted {
				completed = true
			}
		}

		if completed {
			route = routing.LastRoute(inst.WorkItemsForGeneration(ti.Name, ti.Generation))
			if _, err := enabler.Split(ti, route); err != nil {
				return err
			}
		}
	}

	span, err := u.SetWorkItemState(inst, wi, core.WorkItemStateCanceled)
	if err != nil {
		return err
	}

	if !finishTask {
		return nil
	}

	return u.Within(span, func() error {
		if completed {
			return enabler.CompleteTask(u, inst, ti, route)
		}

		return enabler.CancelTask(u, inst, ti)
	})
}

func task(inst *state.Instance, wi *core.WorkItem) (*core.TaskInstance, error) {
	ti := inst.TaskGeneration(wi.TaskName, wi.TaskGeneration)
	if ti == nil {
		return nil, fmt.Errorf("task %s: %w", core.TaskInstanceID(wi.WorkflowInstanceID, wi.TaskName, wi.TaskGeneration), core.ErrNotFound)
	}

	if !ti.State.Active() {
		return nil, fmt.Errorf("task %s is %s: %w", ti.ID(), ti.State, core.ErrTaskNotEnabled)
	}

	return ti, nil
}

func otherActive(inst *state.Instance, wi *core.WorkItem) bool {
	for _, sibling := range inst.WorkItemsForGeneration(wi.TaskName, wi.TaskGeneration) {
		if sibling.ID != wi.ID && !sibling.State.Terminal() {
			return true
		}
	}

	return false
}
