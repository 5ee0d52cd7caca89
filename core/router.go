package core

import "context"

// RouteRequest describes a task that completes without an actor supplying a routing decision: dummy tasks
// and composite tasks whose sub-workflow completed.
type RouteRequest struct {
	Workflow *WorkflowInstance
	Task     *TaskInstance

	// Child is the completed sub-workflow for composite tasks.
	Child *WorkflowInstance
}

// Router supplies routing decisions for automatic completions. Returning an empty route falls back to the
// default route of the task definition.
type Router func(ctx context.Context, req RouteRequest) ([]string, error)
