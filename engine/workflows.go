package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflows"
)

// InitializeWorkflow creates and starts an instance of the given workflow version. An empty version refers
// to the latest registered version. The instance starts a new trace shared by all of its sub-workflows.
func (e *Engine) InitializeWorkflow(ctx context.Context, name, version string, opts ...InitializeOption) (string, error) {
	var o initializeOptions
	for _, opt := range opts {
		opt.applyInitialize(&o)
	}

	def, err := e.registry.Resolve(name, version)
	if err != nil {
		return "", err
	}

	payload, err := rawPayload(o.payload, e.converter.To)
	if err != nil {
		return "", fmt.Errorf("converting payload: %w", err)
	}

	id := uuid.NewString()
	traceID := audit.NewTraceID()

	e.logger.Debug("initializing workflow",
		log.WorkflowNameKey, def.Name,
		log.WorkflowVersionKey, def.Version,
		log.InstanceIDKey, id,
		log.TraceIDKey, traceID,
	)

	_, err = e.driver.Run(ctx, func(ctx context.Context, u *state.Unit) error {
		u.SetScope(audit.Scope{TraceID: traceID})

		wi := core.NewWorkflowInstance(id, def.Name, def.Version, traceID, u.Now())
		wi.AggregateKey = o.aggregateKey
		wi.Payload = payload

		span := u.Event("engine.initialize_workflow", audit.ResourceWorkflow, id, def.Name, id, map[string]any{
			audit.AttrWorkflowName: def.Name,
			audit.AttrVersion:      def.Version,
		})

		return u.Within(span, func() error {
			inst := u.CreateInstance(wi, def)

			if len(o.attributes) > 0 {
				u.Custom(id, o.attributes)
			}

			return workflows.Start(u, inst)
		})
	})
	if err != nil {
		return "", err
	}

	e.cascade(ctx, traceID)

	return id, nil
}

// CancelWorkflow cancels the workflow instance together with its unfinished tasks, work items, and
// sub-workflows.
func (e *Engine) CancelWorkflow(ctx context.Context, instanceID string) error {
	return e.event(ctx, instanceID, audit.Entry{Operation: "engine.cancel_workflow"}, func(ctx context.Context, u *state.Unit, inst *state.Instance) error {
		if inst.Workflow.State.Terminal() {
			return fmt.Errorf("workflow instance %s is %s: %w", instanceID, inst.Workflow.State, core.ErrInvalidTransition)
		}

		return workflows.Cancel(u, inst)
	})
}
