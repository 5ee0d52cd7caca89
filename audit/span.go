package audit

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type ResourceType string

const (
	ResourceWorkflow  ResourceType = "workflow"
	ResourceTask      ResourceType = "task"
	ResourceCondition ResourceType = "condition"
	ResourceWorkItem  ResourceType = "workItem"
	ResourceCustom    ResourceType = "custom"
)

type OperationType string

const (
	// OperationEvent spans are the roots opened for every external event and every processed unit of
	// pending work.
	OperationEvent OperationType = "event"

	// OperationTransition spans record a single state change of a resource.
	OperationTransition OperationType = "transition"

	OperationCustom OperationType = "custom"
)

type State string

const (
	StateStarted   State = "started"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Attribute keys recorded on transition spans.
const (
	AttrStateOld       = "state.old"
	AttrStateNew       = "state.new"
	AttrMarkingOld     = "marking.old"
	AttrMarkingNew     = "marking.new"
	AttrGeneration     = "generation"
	AttrTaskName       = "task.name"
	AttrWorkflowName   = "workflow.name"
	AttrVersion        = "workflow.version"
	AttrParentInstance = "parent.instance_id"
	AttrTasks          = "tasks"
	AttrConditions     = "conditions"
	AttrRoute          = "route"
	AttrError          = "error"
)

// Span is an append-only audit record of one operation. Spans of one workflow tree share a trace and form
// a tree through ParentSpanID.
type Span struct {
	ID           string `json:"id"`
	TraceID      string `json:"trace_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	// Depth is the distance from the root span of the event, Path holds the operations from the root down
	// to and including this span.
	Depth int      `json:"depth"`
	Path  []string `json:"path"`

	Operation     string        `json:"operation"`
	OperationType OperationType `json:"operation_type"`

	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	WorkflowInstanceID string `json:"workflow_instance_id,omitempty"`

	State State `json:"state"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// Scope is the position new spans are recorded at. It is passed explicitly through every engine
// operation and persisted with pending work so that continuations record into the same tree.
type Scope struct {
	TraceID      string   `json:"trace_id"`
	ParentSpanID string   `json:"parent_span_id,omitempty"`
	Depth        int      `json:"depth"`
	Path         []string `json:"path,omitempty"`
}

// Child returns the scope for spans caused by the given span.
func (s Scope) Child(span *Span) Scope {
	return Scope{
		TraceID:      s.TraceID,
		ParentSpanID: span.ID,
		Depth:        span.Depth + 1,
		Path:         span.Path,
	}
}

// NewTraceID returns a random 16 byte trace id, hex encoded.
func NewTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NewSpanID returns a random 8 byte span id, hex encoded.
func NewSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
