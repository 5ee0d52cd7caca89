package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskInstance is one generation of a task within a workflow instance. A task that is re-enabled after
// reaching a terminal state gets a new TaskInstance with the next generation; old generations are kept
// as history and never change again.
type TaskInstance struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Name               string `json:"name"`
	Generation         int    `json:"generation"`

	State TaskState `json:"state"`

	Join    JoinType  `json:"join"`
	Split   SplitType `json:"split"`
	Inputs  []string  `json:"inputs"`
	Outputs []string  `json:"outputs"`

	Composite bool `json:"composite,omitempty"`

	// ChildWorkflowInstanceID is set for composite tasks once the sub-workflow has been spawned.
	ChildWorkflowInstanceID string `json:"child_workflow_instance_id,omitempty"`

	// Consumed records the tokens consumed from each input condition when the task was enabled.
	Consumed map[string]int `json:"consumed,omitempty"`

	// Route records the output conditions that received a token when the task completed.
	Route []string `json:"route,omitempty"`

	EnabledAt  *time.Time `json:"enabled_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ID returns the identity of the task generation, scoped to its workflow instance.
func (t *TaskInstance) ID() string {
	return TaskInstanceID(t.WorkflowInstanceID, t.Name, t.Generation)
}

func TaskInstanceID(workflowInstanceID, name string, generation int) string {
	return fmt.Sprintf("%s/%s/%d", workflowInstanceID, name, generation)
}

type WorkItem struct {
	ID string `json:"id"`

	WorkflowInstanceID string `json:"workflow_instance_id"`
	TaskName           string `json:"task_name"`
	TaskGeneration     int    `json:"task_generation"`

	State WorkItemState `json:"state"`

	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`

	// Route is the routing decision supplied when the work item was completed.
	Route []string `json:"route,omitempty"`

	// Sequence orders work items by creation within their workflow instance.
	Sequence int64 `json:"sequence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
