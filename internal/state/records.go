package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
)

// Record kinds
const (
	KindInstance  = "instance"
	KindTask      = "task"
	KindCondition = "condition"
	KindWorkItem  = "workitem"
	KindPending   = "pending"
)

// Index names
const (
	// IndexInstance is set on tasks, conditions, and work items to the id of their workflow instance.
	IndexInstance = "instance"

	IndexParent    = "parent"
	IndexAggregate = "aggregate"
	IndexTrace     = "trace"

	// IndexQueue is set on all pending work, queried in FIFO order.
	IndexQueue = "queue"
	queueAll   = "all"
)

func recordKey(kind, id string) string {
	return kind + "/" + id
}

func conditionID(workflowInstanceID, name string) string {
	return workflowInstanceID + "/" + name
}

func instanceIndexes(wi *core.WorkflowInstance) map[string]string {
	idx := map[string]string{
		IndexTrace: wi.TraceID,
	}

	if wi.Parent != nil {
		idx[IndexParent] = wi.Parent.WorkflowInstanceID
	}

	if wi.AggregateKey != "" {
		idx[IndexAggregate] = wi.AggregateKey
	}

	return idx
}

func decode[T any](r *backend.Record) (*T, error) {
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", r.Kind, r.ID, err)
	}

	return &v, nil
}

// GetWorkItem reads a single work item without loading its workflow instance.
func GetWorkItem(ctx context.Context, tx backend.Tx, id string) (*core.WorkItem, error) {
	r, err := tx.Get(ctx, KindWorkItem, id)
	if err != nil {
		if errors.Is(err, backend.ErrRecordNotFound) {
			return nil, fmt.Errorf("work item %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("getting work item %s: %w", id, err)
	}

	return decode[core.WorkItem](r)
}

// GetWorkflowInstance reads a single workflow instance record.
func GetWorkflowInstance(ctx context.Context, tx backend.Tx, id string) (*core.WorkflowInstance, error) {
	r, err := tx.Get(ctx, KindInstance, id)
	if err != nil {
		if errors.Is(err, backend.ErrRecordNotFound) {
			return nil, fmt.Errorf("workflow instance %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("getting workflow instance %s: %w", id, err)
	}

	return decode[core.WorkflowInstance](r)
}

// ChildInstances returns the sub-workflow instances spawned by the given instance, in creation order.
func ChildInstances(ctx context.Context, tx backend.Tx, parentID string) ([]*core.WorkflowInstance, error) {
	return queryInstances(ctx, tx, IndexParent, parentID)
}

// InstancesByAggregate returns all workflow instances carrying the aggregate key, in creation order.
func InstancesByAggregate(ctx context.Context, tx backend.Tx, aggregateKey string) ([]*core.WorkflowInstance, error) {
	return queryInstances(ctx, tx, IndexAggregate, aggregateKey)
}

// InstancesByTrace returns all workflow instances of a workflow tree, in creation order.
func InstancesByTrace(ctx context.Context, tx backend.Tx, traceID string) ([]*core.WorkflowInstance, error) {
	return queryInstances(ctx, tx, IndexTrace, traceID)
}

func queryInstances(ctx context.Context, tx backend.Tx, index, value string) ([]*core.WorkflowInstance, error) {
	records, err := tx.Query(ctx, KindInstance, backend.Query{Index: index, Value: value})
	if err != nil {
		return nil, fmt.Errorf("querying workflow instances by %s: %w", index, err)
	}

	r := make([]*core.WorkflowInstance, 0, len(records))
	for _, rec := range records {
		wi, err := decode[core.WorkflowInstance](rec)
		if err != nil {
			return nil, err
		}
		r = append(r, wi)
	}

	return r, nil
}
