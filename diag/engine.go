package diag

import (
	"context"
	"time"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/engine"
)

// Engine is the part of *engine.Engine the diagnostics API reads from.
type Engine interface {
	GetWorkflowInstance(ctx context.Context, instanceID string) (*core.WorkflowInstance, error)
	GetWorkflowInstanceDetails(ctx context.Context, instanceID string) (*engine.InstanceDetails, error)
	GetChildWorkflowInstances(ctx context.Context, instanceID, taskName string) ([]*core.WorkflowInstance, error)

	GetTrace(ctx context.Context, traceID string) (*audit.Trace, error)
	GetSpans(ctx context.Context, traceID string) ([]*audit.Span, error)
	StateAt(ctx context.Context, traceID string, t time.Time) (*audit.Snapshot, error)
}

var _ Engine = (*engine.Engine)(nil)

type WorkflowInstanceTree struct {
	Instance *core.WorkflowInstance `json:"instance"`

	Children []*WorkflowInstanceTree `json:"children"`
}
