package audit

import (
	"slices"

	"github.com/benbjohnson/clock"
)

// Entry describes a span to record.
type Entry struct {
	Operation     string
	OperationType OperationType

	ResourceType ResourceType
	ResourceID   string
	ResourceName string

	WorkflowInstanceID string

	State State

	Attributes map[string]any
}

// Recorder buffers the spans of one transaction. Spans are only persisted when the transaction commits,
// an aborted transaction leaves no trace.
type Recorder struct {
	clock clock.Clock
	scope Scope
	spans []*Span
}

func NewRecorder(c clock.Clock, scope Scope) *Recorder {
	return &Recorder{
		clock: c,
		scope: scope,
	}
}

// Scope returns the scope new spans are currently recorded at.
func (r *Recorder) Scope() Scope {
	return r.scope
}

func (r *Recorder) SetScope(s Scope) {
	r.scope = s
}

// Record appends a span at the current scope.
func (r *Recorder) Record(e Entry) *Span {
	now := r.clock.Now()

	state := e.State
	if state == "" {
		state = StateCompleted
	}

	path := make([]string, 0, len(r.scope.Path)+1)
	path = append(path, r.scope.Path...)
	path = append(path, e.Operation)

	span := &Span{
		ID:                 NewSpanID(),
		TraceID:            r.scope.TraceID,
		ParentSpanID:       r.scope.ParentSpanID,
		Depth:              r.scope.Depth,
		Path:               path,
		Operation:          e.Operation,
		OperationType:      e.OperationType,
		ResourceType:       e.ResourceType,
		ResourceID:         e.ResourceID,
		ResourceName:       e.ResourceName,
		WorkflowInstanceID: e.WorkflowInstanceID,
		State:              state,
		StartedAt:          now,
		EndedAt:            &now,
		Attributes:         e.Attributes,
	}

	r.spans = append(r.spans, span)

	return span
}

// Within records all spans created by fn as children of span.
func (r *Recorder) Within(span *Span, fn func() error) error {
	prev := r.scope
	r.scope = prev.Child(span)
	defer func() {
		r.scope = prev
	}()

	return fn()
}

// End marks the span as finished in the given state.
func (r *Recorder) End(span *Span, state State) {
	now := r.clock.Now()
	span.EndedAt = &now
	span.State = state
}

// Spans returns the buffered spans in recording order.
func (r *Recorder) Spans() []*Span {
	return slices.Clone(r.spans)
}

func (r *Recorder) Len() int {
	return len(r.spans)
}
