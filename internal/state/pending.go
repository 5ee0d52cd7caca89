package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
)

type PendingKind string

const (
	// PendingStartWorkflow starts a freshly created sub-workflow instance.
	PendingStartWorkflow PendingKind = "start-workflow"

	// PendingChildFinished signals the parent of a sub-workflow that reached a terminal state.
	PendingChildFinished PendingKind = "child-finished"

	// PendingCancelWorkflow cancels a sub-workflow whose composite task was canceled.
	PendingCancelWorkflow PendingKind = "cancel-workflow"
)

// ChildResult describes the outcome of a sub-workflow for its parent.
type ChildResult struct {
	WorkflowInstanceID string             `json:"workflow_instance_id"`
	TaskName           string             `json:"task_name"`
	TaskGeneration     int                `json:"task_generation"`
	State              core.WorkflowState `json:"state"`
	Failure            *core.Failure      `json:"failure,omitempty"`
}

// PendingWork is automatic work that crosses a workflow instance boundary. It is persisted in the
// transaction that caused it and processed in its own transaction by the scheduler.
type PendingWork struct {
	ID   string      `json:"id"`
	Kind PendingKind `json:"kind"`

	// WorkflowInstanceID is the instance the work applies to.
	WorkflowInstanceID string `json:"workflow_instance_id"`

	Child *ChildResult `json:"child,omitempty"`

	// Scope is the audit position of the span that caused the work.
	Scope audit.Scope `json:"scope"`

	CreatedAt time.Time `json:"created_at"`

	version int64
}

func (p *PendingWork) TraceID() string {
	return p.Scope.TraceID
}

func putPending(ctx context.Context, tx backend.Tx, p *PendingWork) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding pending work: %w", err)
	}

	return tx.Put(ctx, &backend.Record{
		Kind: KindPending,
		ID:   p.ID,
		Data: data,
		Indexes: map[string]string{
			IndexQueue: queueAll,
			IndexTrace: p.Scope.TraceID,
		},
	})
}

// ListPending returns up to limit pending work items, oldest first.
func ListPending(ctx context.Context, tx backend.Tx, limit int) ([]*PendingWork, error) {
	return queryPending(ctx, tx, backend.Query{Index: IndexQueue, Value: queueAll, Limit: limit})
}

// ListPendingForTrace returns up to limit pending work items of the given workflow tree, oldest first.
func ListPendingForTrace(ctx context.Context, tx backend.Tx, traceID string, limit int) ([]*PendingWork, error) {
	return queryPending(ctx, tx, backend.Query{Index: IndexTrace, Value: traceID, Limit: limit})
}

// GetPending reads a single pending work item.
func GetPending(ctx context.Context, tx backend.Tx, id string) (*PendingWork, error) {
	r, err := tx.Get(ctx, KindPending, id)
	if err != nil {
		if errors.Is(err, backend.ErrRecordNotFound) {
			return nil, fmt.Errorf("pending work %s: %w", id, core.ErrNotFound)
		}

		return nil, fmt.Errorf("getting pending work %s: %w", id, err)
	}

	return decodePending(r)
}

func queryPending(ctx context.Context, tx backend.Tx, q backend.Query) ([]*PendingWork, error) {
	records, err := tx.Query(ctx, KindPending, q)
	if err != nil {
		return nil, fmt.Errorf("querying pending work: %w", err)
	}

	r := make([]*PendingWork, 0, len(records))
	for _, rec := range records {
		p, err := decodePending(rec)
		if err != nil {
			return nil, err
		}
		r = append(r, p)
	}

	return r, nil
}

func decodePending(r *backend.Record) (*PendingWork, error) {
	p, err := decode[PendingWork](r)
	if err != nil {
		return nil, err
	}

	p.version = r.Version

	return p, nil
}
