package main

import (
	"context"
	"log"

	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
	"github.com/cschleiden/go-wfnet/samples"
)

// Approval is a request that is reviewed until it is approved. Rejected requests go back to the author.
var Approval = definition.New("approval", "v1").
	Condition("start", "draft", "submitted", "end").
	Task("open", definition.From("start"), definition.To("draft"), definition.Dummy()).
	Task("submit", definition.From("draft"), definition.To("submitted"), definition.AutoWorkItem()).
	Task("review",
		definition.From("submitted"),
		definition.To("draft", "end"),
		definition.Split(core.SplitXOR),
		definition.AutoWorkItem(),
	).
	MustBuild()

func main() {
	ctx := context.Background()

	r := registry.New()
	if err := r.Register(Approval); err != nil {
		panic("could not register workflow: " + err.Error())
	}

	e := engine.New(memory.NewMemoryBackend(), r)

	id, err := e.InitializeWorkflow(ctx, "approval", "", engine.WithPayload(map[string]string{"title": "Hello world"}))
	if err != nil {
		panic("could not start workflow: " + err.Error())
	}

	samples.Trace(id, "Started workflow")

	// The first review sends the request back, the second one approves it
	for _, route := range []string{"draft", "end"} {
		complete(ctx, e, id, "submit", nil)
		complete(ctx, e, id, "review", []string{route})
	}

	wf, err := e.GetWorkflowInstance(ctx, id)
	if err != nil {
		panic("could not get workflow instance: " + err.Error())
	}

	samples.Trace(id, "Workflow", wf.State)

	samples.PrintTrace(ctx, e, id)
}

func complete(ctx context.Context, e *engine.Engine, instanceID, task string, route []string) {
	wi, err := e.CurrentWorkItem(ctx, instanceID, task)
	if err != nil {
		panic("could not find work item: " + err.Error())
	}

	if err := e.StartWorkItem(ctx, wi.ID); err != nil {
		panic("could not start work item: " + err.Error())
	}

	if err := e.CompleteWorkItem(ctx, wi.ID, map[string]bool{"done": true}, engine.WithRoute(route...)); err != nil {
		panic("could not complete work item: " + err.Error())
	}

	log.Println("Completed", task, route)
}
