package state

import (
	"encoding/json"
	"fmt"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/log"
)

var verbs = map[string]string{
	"initialized": "initialize",
	"enabled":     "enable",
	"started":     "start",
	"completed":   "complete",
	"failed":      "fail",
	"canceled":    "cancel",
}

func operation(resource, state string) string {
	return resource + "." + verbs[state]
}

func spanState(state string) audit.State {
	switch state {
	case "failed":
		return audit.StateFailed
	case "canceled":
		return audit.StateCanceled
	}

	return audit.StateCompleted
}

// SetWorkflowState transitions the workflow instance. Failures are recorded on the instance.
func (u *Unit) SetWorkflowState(inst *Instance, to core.WorkflowState, failure *core.Failure) (*audit.Span, error) {
	wi := inst.Workflow
	from := wi.State

	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("workflow instance %s: %s -> %s: %w", wi.ID, from, to, core.ErrInvalidTransition)
	}

	now := u.Now()
	wi.State = to
	wi.UpdatedAt = now
	if to.Terminal() {
		wi.FinishedAt = &now
	}

	attrs := map[string]any{
		audit.AttrStateOld: string(from),
		audit.AttrStateNew: string(to),
	}

	if failure != nil {
		wi.Failure = failure
		attrs[audit.AttrError] = failure.Message
	}

	span := u.Recorder.Record(audit.Entry{
		Operation:          operation("workflow", string(to)),
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceWorkflow,
		ResourceID:         wi.ID,
		ResourceName:       wi.WorkflowName,
		WorkflowInstanceID: wi.ID,
		State:              spanState(string(to)),
		Attributes:         attrs,
	})

	u.options.Logger.Debug("workflow instance transition",
		log.InstanceIDKey, wi.ID,
		log.WorkflowStateKey, string(to),
	)

	return span, nil
}

// SetTaskState transitions the task generation.
func (u *Unit) SetTaskState(inst *Instance, t *core.TaskInstance, to core.TaskState) (*audit.Span, error) {
	from := t.State

	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("task %s: %s -> %s: %w", t.ID(), from, to, core.ErrInvalidTransition)
	}

	now := u.Now()
	t.State = to
	switch {
	case to == core.TaskStateEnabled:
		t.EnabledAt = &now
	case to == core.TaskStateStarted:
		t.StartedAt = &now
	case to.Terminal():
		t.FinishedAt = &now
	}

	span := u.Recorder.Record(audit.Entry{
		Operation:          operation("task", string(to)),
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceTask,
		ResourceID:         t.ID(),
		ResourceName:       t.Name,
		WorkflowInstanceID: t.WorkflowInstanceID,
		State:              spanState(string(to)),
		Attributes: map[string]any{
			audit.AttrStateOld:   string(from),
			audit.AttrStateNew:   string(to),
			audit.AttrGeneration: t.Generation,
		},
	})

	u.options.Logger.Debug("task transition",
		log.InstanceIDKey, t.WorkflowInstanceID,
		log.TaskNameKey, t.Name,
		log.TaskGenerationKey, t.Generation,
		log.TaskStateKey, string(to),
	)

	return span, nil
}

// AddTaskGeneration adds a new, disabled, generation of the task to the instance.
func (u *Unit) AddTaskGeneration(inst *Instance, def *definition.Task, generation int) *core.TaskInstance {
	t := newTaskInstance(inst.Workflow.ID, def, generation)
	inst.Tasks = append(inst.Tasks, t)

	return t
}

// SetMarking changes the token count of the condition.
func (u *Unit) SetMarking(inst *Instance, c *core.ConditionInstance, marking int, op string) *audit.Span {
	old := c.Marking
	c.Marking = marking

	span := u.Recorder.Record(audit.Entry{
		Operation:          "condition." + op,
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceCondition,
		ResourceID:         conditionID(c.WorkflowInstanceID, c.Name),
		ResourceName:       c.Name,
		WorkflowInstanceID: c.WorkflowInstanceID,
		Attributes: map[string]any{
			audit.AttrMarkingOld: old,
			audit.AttrMarkingNew: marking,
		},
	})

	u.options.Logger.Debug("condition marking",
		log.InstanceIDKey, c.WorkflowInstanceID,
		log.ConditionNameKey, c.Name,
		log.MarkingKey, marking,
	)

	return span
}

// AddWorkItem creates a work item bound to the given task generation.
func (u *Unit) AddWorkItem(inst *Instance, t *core.TaskInstance, id string, payload json.RawMessage) (*core.WorkItem, *audit.Span) {
	now := u.Now()

	wi := &core.WorkItem{
		ID:                 id,
		WorkflowInstanceID: inst.Workflow.ID,
		TaskName:           t.Name,
		TaskGeneration:     t.Generation,
		State:              core.WorkItemStateInitialized,
		Payload:            payload,
		Sequence:           inst.Workflow.NextSequence(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	inst.WorkItems = append(inst.WorkItems, wi)

	span := u.Recorder.Record(audit.Entry{
		Operation:          "workitem.initialize",
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceWorkItem,
		ResourceID:         wi.ID,
		ResourceName:       t.Name,
		WorkflowInstanceID: wi.WorkflowInstanceID,
		Attributes: map[string]any{
			audit.AttrStateNew:   string(wi.State),
			audit.AttrTaskName:   t.Name,
			audit.AttrGeneration: t.Generation,
		},
	})

	u.options.Logger.Debug("initialized work item",
		log.InstanceIDKey, wi.WorkflowInstanceID,
		log.WorkItemIDKey, wi.ID,
		log.TaskNameKey, t.Name,
		log.TaskGenerationKey, t.Generation,
	)

	return wi, span
}

// SetWorkItemState transitions the work item.
func (u *Unit) SetWorkItemState(inst *Instance, wi *core.WorkItem, to core.WorkItemState) (*audit.Span, error) {
	from := wi.State

	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("work item %s: %s -> %s: %w", wi.ID, from, to, core.ErrInvalidTransition)
	}

	wi.State = to
	wi.UpdatedAt = u.Now()

	attrs := map[string]any{
		audit.AttrStateOld:   string(from),
		audit.AttrStateNew:   string(to),
		audit.AttrTaskName:   wi.TaskName,
		audit.AttrGeneration: wi.TaskGeneration,
	}

	if wi.Failure != nil && to == core.WorkItemStateFailed {
		attrs[audit.AttrError] = wi.Failure.Message
	}

	if len(wi.Route) > 0 && to == core.WorkItemStateCompleted {
		attrs[audit.AttrRoute] = wi.Route
	}

	span := u.Recorder.Record(audit.Entry{
		Operation:          operation("workitem", string(to)),
		OperationType:      audit.OperationTransition,
		ResourceType:       audit.ResourceWorkItem,
		ResourceID:         wi.ID,
		ResourceName:       wi.TaskName,
		WorkflowInstanceID: wi.WorkflowInstanceID,
		State:              spanState(string(to)),
		Attributes:         attrs,
	})

	u.options.Logger.Debug("work item transition",
		log.InstanceIDKey, wi.WorkflowInstanceID,
		log.WorkItemIDKey, wi.ID,
		log.WorkItemStateKey, string(to),
	)

	return span, nil
}
