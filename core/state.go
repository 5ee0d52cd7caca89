package core

type WorkflowState string

const (
	WorkflowStateInitialized WorkflowState = "initialized"
	WorkflowStateStarted     WorkflowState = "started"
	WorkflowStateCompleted   WorkflowState = "completed"
	WorkflowStateFailed      WorkflowState = "failed"
	WorkflowStateCanceled    WorkflowState = "canceled"
)

func (s WorkflowState) Terminal() bool {
	return s == WorkflowStateCompleted || s == WorkflowStateFailed || s == WorkflowStateCanceled
}

func (s WorkflowState) CanTransitionTo(to WorkflowState) bool {
	switch s {
	case WorkflowStateInitialized:
		return to == WorkflowStateStarted || to == WorkflowStateFailed || to == WorkflowStateCanceled
	case WorkflowStateStarted:
		return to == WorkflowStateCompleted || to == WorkflowStateFailed || to == WorkflowStateCanceled
	}

	return false
}

type TaskState string

const (
	TaskStateDisabled  TaskState = "disabled"
	TaskStateEnabled   TaskState = "enabled"
	TaskStateStarted   TaskState = "started"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCanceled
}

// Active reports whether the task generation currently holds the task, i.e. it is enabled or started.
func (s TaskState) Active() bool {
	return s == TaskStateEnabled || s == TaskStateStarted
}

func (s TaskState) CanTransitionTo(to TaskState) bool {
	switch s {
	case TaskStateDisabled:
		return to == TaskStateEnabled || to == TaskStateCanceled
	case TaskStateEnabled:
		return to == TaskStateStarted || to == TaskStateCanceled || to == TaskStateFailed
	case TaskStateStarted:
		return to == TaskStateCompleted || to == TaskStateFailed || to == TaskStateCanceled
	}

	return false
}

type WorkItemState string

const (
	WorkItemStateInitialized WorkItemState = "initialized"
	WorkItemStateStarted     WorkItemState = "started"
	WorkItemStateCompleted   WorkItemState = "completed"
	WorkItemStateFailed      WorkItemState = "failed"
	WorkItemStateCanceled    WorkItemState = "canceled"
)

func (s WorkItemState) Terminal() bool {
	return s == WorkItemStateCompleted || s == WorkItemStateFailed || s == WorkItemStateCanceled
}

func (s WorkItemState) CanTransitionTo(to WorkItemState) bool {
	switch s {
	case WorkItemStateInitialized:
		return to == WorkItemStateStarted || to == WorkItemStateCanceled
	case WorkItemStateStarted:
		return to == WorkItemStateCompleted || to == WorkItemStateFailed || to == WorkItemStateCanceled
	}

	return false
}
