package main

import (
	"context"

	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
	"github.com/cschleiden/go-wfnet/samples"
)

var Hiring = definition.New("hiring", "v1").
	Condition("start", "interviewed", "end").
	Task("interview", definition.From("start"), definition.To("interviewed"), definition.Composite("interview", "")).
	Task("decide", definition.From("interviewed"), definition.To("end"), definition.AutoWorkItem()).
	MustBuild()

var Interview = definition.New("interview", "v1").
	Condition("start", "end").
	Task("talk", definition.From("start"), definition.To("end")).
	MustBuild()

func main() {
	ctx := context.Background()

	r := registry.New()
	for _, v := range []*definition.WorkflowVersion{Hiring, Interview} {
		if err := r.Register(v); err != nil {
			panic("could not register workflow: " + err.Error())
		}
	}

	e := engine.New(memory.NewMemoryBackend(), r)

	id, err := Run(ctx, e)
	if err != nil {
		panic(err)
	}

	samples.PrintTrace(ctx, e, id)
}

// Run hires a candidate. The work items of the interview are addressed through the composite task of the
// parent workflow, so the caller never needs to know the sub-workflow instance.
func Run(ctx context.Context, e *engine.Engine) (string, error) {
	id, err := e.InitializeWorkflow(ctx, "hiring", "")
	if err != nil {
		return "", err
	}

	samples.Trace(id, "Started hiring")

	// Two interviewers talk to the candidate
	var items []string
	for _, interviewer := range []string{"alice", "bob"} {
		wi, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{
			Path:                     []string{"interview"},
			ParentWorkflowInstanceID: id,
			ParentTaskName:           "talk",
		}, map[string]string{"interviewer": interviewer})
		if err != nil {
			return "", err
		}

		items = append(items, wi)
	}

	for _, wi := range items {
		if err := e.StartWorkItem(ctx, wi); err != nil {
			return "", err
		}

		if err := e.CompleteWorkItem(ctx, wi, map[string]bool{"hire": true}); err != nil {
			return "", err
		}
	}

	children, err := e.GetChildWorkflowInstances(ctx, id, "interview")
	if err != nil {
		return "", err
	}

	for _, c := range children {
		samples.Trace(c.ID, "Interview", c.State)
	}

	decide, err := e.CurrentWorkItem(ctx, id, "decide")
	if err != nil {
		return "", err
	}

	if err := e.StartWorkItem(ctx, decide.ID); err != nil {
		return "", err
	}

	if err := e.CompleteWorkItem(ctx, decide.ID, map[string]string{"decision": "hired"}); err != nil {
		return "", err
	}

	return id, nil
}
