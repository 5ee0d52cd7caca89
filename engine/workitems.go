package engine

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflowerrors"
	"github.com/cschleiden/go-wfnet/internal/workitems"
)

// WorkItemTarget addresses the task a work item is created for. The task ParentTaskName is looked up in
// the workflow instance reached by following Path, a list of composite task names, from the instance
// ParentWorkflowInstanceID down through the sub-workflows currently spawned by those tasks.
type WorkItemTarget struct {
	Path                     []string
	ParentWorkflowInstanceID string
	ParentTaskName           string
}

// InitializeWorkItem creates a work item for the current generation of the target task. The task has to be
// enabled or started, otherwise core.ErrTaskNotEnabled is returned.
func (e *Engine) InitializeWorkItem(ctx context.Context, target WorkItemTarget, payload any) (string, error) {
	instanceID, err := e.resolveTarget(ctx, target)
	if err != nil {
		return "", err
	}

	raw, err := rawPayload(payload, e.converter.To)
	if err != nil {
		return "", fmt.Errorf("converting payload: %w", err)
	}

	var id string

	err = e.event(ctx, instanceID, audit.Entry{
		Operation:  "engine.initialize_work_item",
		Attributes: map[string]any{audit.AttrTaskName: target.ParentTaskName},
	}, func(ctx context.Context, u *state.Unit, inst *state.Instance) error {
		wi, err := workitems.Initialize(u, inst, target.ParentTaskName, raw)
		if err != nil {
			return err
		}

		id = wi.ID

		return nil
	})

	return id, err
}

func (e *Engine) resolveTarget(ctx context.Context, target WorkItemTarget) (string, error) {
	id := target.ParentWorkflowInstanceID
	if len(target.Path) == 0 {
		return id, nil
	}

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		for _, name := range target.Path {
			inst, err := state.Load(ctx, tx, id)
			if err != nil {
				return err
			}

			t := inst.Task(name)
			if t == nil || t.ChildWorkflowInstanceID == "" {
				return fmt.Errorf("no sub-workflow for task %q of workflow instance %s: %w", name, id, core.ErrNotFound)
			}

			id = t.ChildWorkflowInstanceID
		}

		return nil
	})

	return id, err
}

func (e *Engine) StartWorkItem(ctx context.Context, workItemID string) error {
	return e.workItemEvent(ctx, workItemID, "engine.start_work_item", nil, func(ctx context.Context, u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
		return workitems.Start(u, inst, wi)
	})
}

// CompleteWorkItem completes a started work item with the given result. The routing decision for the split
// of its task is passed with WithRoute.
func (e *Engine) CompleteWorkItem(ctx context.Context, workItemID string, result any, opts ...CompleteOption) error {
	var o completeOptions
	for _, opt := range opts {
		opt.applyComplete(&o)
	}

	raw, err := rawPayload(result, e.converter.To)
	if err != nil {
		return fmt.Errorf("converting result: %w", err)
	}

	var attrs map[string]any
	if len(o.route) > 0 {
		attrs = map[string]any{audit.AttrRoute: o.route}
	}

	return e.workItemEvent(ctx, workItemID, "engine.complete_work_item", attrs, func(ctx context.Context, u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
		if len(o.attributes) > 0 {
			u.Custom(inst.Workflow.ID, o.attributes)
		}

		return workitems.Complete(u, inst, wi, raw, o.route)
	})
}

// FailWorkItem fails a started work item. Its task, its workflow instance, and all parents of the instance
// fail with it.
func (e *Engine) FailWorkItem(ctx context.Context, workItemID string, cause error) error {
	failure := workflowerrors.FromError(cause)

	return e.workItemEvent(ctx, workItemID, "engine.fail_work_item", nil, func(ctx context.Context, u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
		return workitems.Fail(u, inst, wi, failure)
	})
}

func (e *Engine) CancelWorkItem(ctx context.Context, workItemID string) error {
	return e.workItemEvent(ctx, workItemID, "engine.cancel_work_item", nil, func(ctx context.Context, u *state.Unit, inst *state.Instance, wi *core.WorkItem) error {
		return workitems.Cancel(u, inst, wi)
	})
}

func (e *Engine) workItemEvent(
	ctx context.Context, workItemID, operation string, attrs map[string]any,
	fn func(ctx context.Context, u *state.Unit, inst *state.Instance, wi *core.WorkItem) error,
) error {
	wi, err := e.GetWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}

	return e.event(ctx, wi.WorkflowInstanceID, audit.Entry{
		Operation:    operation,
		ResourceType: audit.ResourceWorkItem,
		ResourceID:   wi.ID,
		ResourceName: wi.TaskName,
		Attributes:   attrs,
	}, func(ctx context.Context, u *state.Unit, inst *state.Instance) error {
		current := inst.WorkItem(workItemID)
		if current == nil {
			return fmt.Errorf("work item %s: %w", workItemID, core.ErrNotFound)
		}

		return fn(ctx, u, inst, current)
	})
}
