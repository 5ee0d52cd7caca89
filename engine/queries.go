package engine

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/routing"
	"github.com/cschleiden/go-wfnet/internal/state"
)

func (e *Engine) view(ctx context.Context, instanceID string, fn func(inst *state.Instance) error) error {
	return e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := state.Load(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		return fn(inst)
	})
}

func (e *Engine) GetWorkflowInstance(ctx context.Context, instanceID string) (*core.WorkflowInstance, error) {
	var wi *core.WorkflowInstance

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		wi, err = state.GetWorkflowInstance(ctx, tx, instanceID)
		return err
	})

	return wi, err
}

// InstanceDetails is the complete state of a workflow instance: every task generation, condition, and work
// item.
type InstanceDetails struct {
	Workflow   *core.WorkflowInstance    `json:"workflow"`
	Tasks      []*core.TaskInstance      `json:"tasks"`
	Conditions []*core.ConditionInstance `json:"conditions"`
	WorkItems  []*core.WorkItem          `json:"work_items"`
}

func (e *Engine) GetWorkflowInstanceDetails(ctx context.Context, instanceID string) (*InstanceDetails, error) {
	var d *InstanceDetails

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		d = &InstanceDetails{
			Workflow:   inst.Workflow,
			Tasks:      inst.Tasks,
			Conditions: inst.Conditions,
			WorkItems:  inst.WorkItems,
		}
		return nil
	})

	return d, err
}

// GetTaskState returns the state of the latest generation of the task.
func (e *Engine) GetTaskState(ctx context.Context, instanceID, taskName string) (core.TaskState, error) {
	var s core.TaskState

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		t := inst.Task(taskName)
		if t == nil {
			return fmt.Errorf("task %q of workflow instance %s: %w", taskName, instanceID, core.ErrNotFound)
		}

		s = t.State
		return nil
	})

	return s, err
}

// GetTaskInstances returns all generations of the task, oldest first.
func (e *Engine) GetTaskInstances(ctx context.Context, instanceID, taskName string) ([]*core.TaskInstance, error) {
	var r []*core.TaskInstance

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		r = inst.TaskGenerations(taskName)
		if len(r) == 0 {
			return fmt.Errorf("task %q of workflow instance %s: %w", taskName, instanceID, core.ErrNotFound)
		}

		return nil
	})

	return r, err
}

func (e *Engine) GetConditionMarking(ctx context.Context, instanceID, condition string) (int, error) {
	var marking int

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		c := inst.Condition(condition)
		if c == nil {
			return fmt.Errorf("condition %q of workflow instance %s: %w", condition, instanceID, core.ErrUnknownCondition)
		}

		marking = c.Marking
		return nil
	})

	return marking, err
}

func (e *Engine) GetWorkItem(ctx context.Context, workItemID string) (*core.WorkItem, error) {
	var wi *core.WorkItem

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		wi, err = state.GetWorkItem(ctx, tx, workItemID)
		return err
	})

	return wi, err
}

// GetWorkItemsForTask returns the work items of all generations of the task, newest first.
func (e *Engine) GetWorkItemsForTask(ctx context.Context, instanceID, taskName string) ([]*core.WorkItem, error) {
	var r []*core.WorkItem

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		r = inst.WorkItemsForTask(taskName)
		routing.Sort(r)
		return nil
	})

	return r, err
}

// GetChildWorkflowInstances returns the sub-workflows spawned by the instance, in creation order. A
// non-empty taskName restricts the result to the sub-workflows of that composite task.
func (e *Engine) GetChildWorkflowInstances(ctx context.Context, instanceID, taskName string) ([]*core.WorkflowInstance, error) {
	var r []*core.WorkflowInstance

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		if _, err := state.GetWorkflowInstance(ctx, tx, instanceID); err != nil {
			return err
		}

		children, err := state.ChildInstances(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		for _, c := range children {
			if taskName == "" || c.Parent.TaskName == taskName {
				r = append(r, c)
			}
		}

		return nil
	})

	return r, err
}

// CurrentWorkItem returns the most recently created work item of the task across all of its generations.
func (e *Engine) CurrentWorkItem(ctx context.Context, instanceID, taskName string) (*core.WorkItem, error) {
	var wi *core.WorkItem

	err := e.view(ctx, instanceID, func(inst *state.Instance) error {
		wi = routing.Current(inst, taskName)
		if wi == nil {
			return fmt.Errorf("work item for task %q of workflow instance %s: %w", taskName, instanceID, core.ErrNotFound)
		}

		return nil
	})

	return wi, err
}

// CurrentWorkItemByAggregate returns the most recently created work item of the named task among all
// workflow instances carrying the aggregate key, including sub-workflows.
func (e *Engine) CurrentWorkItemByAggregate(ctx context.Context, aggregateKey, taskName string) (*core.WorkItem, error) {
	var candidates []*core.WorkItem

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		instances, err := state.InstancesByAggregate(ctx, tx, aggregateKey)
		if err != nil {
			return err
		}

		for _, wi := range instances {
			inst, err := state.Load(ctx, tx, wi.ID)
			if err != nil {
				return err
			}

			if c := routing.Current(inst, taskName); c != nil {
				candidates = append(candidates, c)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	wi := routing.Latest(candidates)
	if wi == nil {
		return nil, fmt.Errorf("work item for task %q with aggregate key %q: %w", taskName, aggregateKey, core.ErrNotFound)
	}

	return wi, nil
}
