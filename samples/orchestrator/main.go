package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
	"github.com/cschleiden/go-wfnet/samples"
	"github.com/cschleiden/go-wfnet/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := registry.New()
	for _, v := range []*definition.WorkflowVersion{Order, Shipping} {
		if err := r.Register(v); err != nil {
			panic("could not register workflow: " + err.Error())
		}
	}

	orchestrator := worker.NewWorkflowOrchestrator(samples.GetBackend("orchestrator"), r, nil)

	if err := orchestrator.Start(ctx); err != nil {
		panic("could not start orchestrator: " + err.Error())
	}

	orderID := uuid.NewString()

	id, err := orchestrator.InitializeWorkflow(ctx, "order", "", engine.WithAggregateKey(orderID))
	if err != nil {
		panic("could not create workflow instance: " + err.Error())
	}

	// The shipping sub-workflow is spawned by the worker, wait until its work item shows up
	wi, err := waitForWorkItem(ctx, orchestrator.Engine, orderID, "ship")
	if err != nil {
		panic("could not find work item: " + err.Error())
	}

	if err := orchestrator.Client.StartWorkItem(ctx, wi.ID); err != nil {
		panic("could not start work item: " + err.Error())
	}

	if err := orchestrator.Client.CompleteWorkItem(ctx, wi.ID, map[string]string{"carrier": "ACME"}); err != nil {
		panic("could not complete work item: " + err.Error())
	}

	wf, err := orchestrator.Client.WaitForWorkflow(ctx, id, 10*time.Second)
	if err != nil {
		panic("error waiting for workflow: " + err.Error())
	}

	log.Printf("Workflow %s: %s\n", id, wf.State)

	samples.PrintTrace(ctx, orchestrator.Engine, id)

	// Clean shutdown
	cancel()

	if err := orchestrator.WaitForCompletion(); err != nil {
		panic("could not stop orchestrator: " + err.Error())
	}
}

// Order ships the order in a sub-workflow.
var Order = definition.New("order", "v1").
	Condition("start", "end").
	Task("fulfil", definition.From("start"), definition.To("end"), definition.Composite("shipping", "")).
	MustBuild()

var Shipping = definition.New("shipping", "v1").
	Condition("start", "end").
	Task("ship", definition.From("start"), definition.To("end"), definition.AutoWorkItem()).
	MustBuild()

func waitForWorkItem(ctx context.Context, e *engine.Engine, aggregateKey, task string) (*core.WorkItem, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		wi, err := e.CurrentWorkItemByAggregate(ctx, aggregateKey, task)
		if err == nil {
			return wi, nil
		}

		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
