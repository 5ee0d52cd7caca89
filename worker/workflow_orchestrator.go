package worker

import (
	"context"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/client"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

// WorkflowOrchestrator combines an engine, a worker, and a client into a single entity for deployments
// running everything in one process.
type WorkflowOrchestrator struct {
	worker *Worker
	Engine *engine.Engine
	Client *client.Client // Exposed for direct access to work item operations
}

// NewWorkflowOrchestrator creates an engine for the backend and registry together with a worker and a
// client using it. Pending work is processed by the worker instead of by the operation causing it.
func NewWorkflowOrchestrator(b backend.Backend, r *registry.Registry, options *Options, opts ...engine.Option) *WorkflowOrchestrator {
	if options == nil {
		options = &DefaultOptions
	}

	orchestratorOptions := *options

	// Set default pollers to 1 for orchestrator mode (unless explicitly overridden)
	if orchestratorOptions.Pollers == DefaultOptions.Pollers {
		orchestratorOptions.Pollers = 1
	}

	opts = append([]engine.Option{engine.WithSynchronousCascade(false)}, opts...)
	e := engine.New(b, r, opts...)

	return &WorkflowOrchestrator{
		worker: New(e, &orchestratorOptions),
		Engine: e,
		Client: client.New(e),
	}
}

// Start starts the worker.
func (o *WorkflowOrchestrator) Start(ctx context.Context) error {
	return o.worker.Start(ctx)
}

// WaitForCompletion waits for the worker to complete processing.
func (o *WorkflowOrchestrator) WaitForCompletion() error {
	return o.worker.WaitForCompletion()
}

// InitializeWorkflow creates and starts a new workflow instance using the client.
func (o *WorkflowOrchestrator) InitializeWorkflow(ctx context.Context, name, version string, opts ...engine.InitializeOption) (string, error) {
	return o.Client.InitializeWorkflow(ctx, name, version, opts...)
}

// CancelWorkflow cancels a workflow instance using the client.
func (o *WorkflowOrchestrator) CancelWorkflow(ctx context.Context, instanceID string) error {
	return o.Client.CancelWorkflow(ctx, instanceID)
}
