package audit

import (
	"time"
)

// Trace summarizes all spans recorded for one workflow tree.
type Trace struct {
	ID string `json:"id"`

	// RootWorkflowInstanceID is the workflow instance the trace was started for.
	RootWorkflowInstanceID string `json:"root_workflow_instance_id,omitempty"`

	// WorkflowInstanceIDs lists all instances of the tree in order of appearance.
	WorkflowInstanceIDs []string `json:"workflow_instance_ids"`

	SpanCount  int `json:"span_count"`
	EventCount int `json:"event_count"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Summarize builds the trace summary for the given spans. It returns nil for an empty trace.
func Summarize(traceID string, spans []*Span) *Trace {
	if len(spans) == 0 {
		return nil
	}

	t := &Trace{
		ID:        traceID,
		SpanCount: len(spans),
		StartedAt: spans[0].StartedAt,
	}

	seen := make(map[string]bool)
	for _, s := range spans {
		if s.OperationType == OperationEvent {
			t.EventCount++
		}

		if s.StartedAt.Before(t.StartedAt) {
			t.StartedAt = s.StartedAt
		}

		end := s.StartedAt
		if s.EndedAt != nil {
			end = *s.EndedAt
		}
		if end.After(t.EndedAt) {
			t.EndedAt = end
		}

		if s.WorkflowInstanceID != "" && !seen[s.WorkflowInstanceID] {
			seen[s.WorkflowInstanceID] = true
			t.WorkflowInstanceIDs = append(t.WorkflowInstanceIDs, s.WorkflowInstanceID)

			if t.RootWorkflowInstanceID == "" {
				t.RootWorkflowInstanceID = s.WorkflowInstanceID
			}
		}
	}

	return t
}
