package core

import (
	"encoding/json"
	"time"
)

// ParentRef identifies the composite task invocation that spawned a sub-workflow instance.
type ParentRef struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	TaskName           string `json:"task_name"`
	TaskGeneration     int    `json:"task_generation"`
}

type WorkflowInstance struct {
	// ID is the ID of the workflow instance.
	ID string `json:"id"`

	// WorkflowName and WorkflowVersion reference the definition this instance executes. The definition
	// is resolved at initialization and never changes for the lifetime of the instance.
	WorkflowName    string `json:"workflow_name"`
	WorkflowVersion string `json:"workflow_version"`

	State WorkflowState `json:"state"`

	// Parent refers to the composite task if this instance is a sub-workflow.
	Parent *ParentRef `json:"parent,omitempty"`

	// AggregateKey is an optional business-entity id callers use to look up work without knowing
	// the workflow instance id. Sub-workflows inherit the key of their parent.
	AggregateKey string `json:"aggregate_key,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	// TraceID is shared by all instances of a workflow tree. Every operation on the tree records
	// its spans into this trace.
	TraceID string `json:"trace_id"`

	// Sequence is a per-instance counter used to order work item creation.
	Sequence int64 `json:"sequence"`

	Failure *Failure `json:"failure,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func NewWorkflowInstance(id, name, version, traceID string, now time.Time) *WorkflowInstance {
	return &WorkflowInstance{
		ID:              id,
		WorkflowName:    name,
		WorkflowVersion: version,
		State:           WorkflowStateInitialized,
		TraceID:         traceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func NewSubWorkflowInstance(id, name, version string, parent *WorkflowInstance, ref ParentRef, now time.Time) *WorkflowInstance {
	wi := NewWorkflowInstance(id, name, version, parent.TraceID, now)
	wi.Parent = &ref
	wi.AggregateKey = parent.AggregateKey

	return wi
}

func (wi *WorkflowInstance) SubWorkflow() bool {
	return wi.Parent != nil
}

// NextSequence increments and returns the instance sequence counter.
func (wi *WorkflowInstance) NextSequence() int64 {
	wi.Sequence++
	return wi.Sequence
}

// ConditionInstance holds the marking (token count) of one condition of a workflow instance.
type ConditionInstance struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Name               string `json:"name"`
	Marking            int    `json:"marking"`
}
