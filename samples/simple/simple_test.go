package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

func Test_Approval(t *testing.T) {
	ctx := context.Background()

	r := registry.New()
	require.NoError(t, r.Register(Approval))

	e := engine.New(memory.NewMemoryBackend(), r)

	id, err := e.InitializeWorkflow(ctx, "approval", "")
	require.NoError(t, err)

	complete(ctx, e, id, "submit", nil)
	complete(ctx, e, id, "review", []string{"draft"})

	instances, err := e.GetTaskInstances(ctx, id, "submit")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	complete(ctx, e, id, "submit", nil)
	complete(ctx, e, id, "review", []string{"end"})

	wf, err := e.GetWorkflowInstance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.WorkflowStateCompleted, wf.State)
}
