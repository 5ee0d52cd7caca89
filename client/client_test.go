package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

// conflictingBackend fails the first conflicts updates with a concurrent modification.
type conflictingBackend struct {
	backend.Backend

	conflicts int
	updates   int
}

func (b *conflictingBackend) Update(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	b.updates++

	if b.conflicts > 0 {
		b.conflicts--
		return fmt.Errorf("committing: %w", backend.ErrConcurrentModification)
	}

	return b.Backend.Update(ctx, fn)
}

func newClient(t *testing.T, b backend.Backend, opts ...func(*Options)) *Client {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.Register(definition.New("single", "v1").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()))

	return New(engine.New(b, r), opts...)
}

func work(t *testing.T, ctx context.Context, c *Client, id string) string {
	t.Helper()

	wi, err := c.InitializeWorkItem(ctx, engine.WorkItemTarget{ParentWorkflowInstanceID: id, ParentTaskName: "a"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.StartWorkItem(ctx, wi))

	return wi
}

func Test_Client_RetriesConcurrentModification(t *testing.T) {
	ctx := context.Background()

	b := &conflictingBackend{Backend: memory.NewMemoryBackend(), conflicts: 2}
	c := newClient(t, b)

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)
	require.Equal(t, 3, b.updates)

	wi, err := c.Engine().GetWorkflowInstance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.WorkflowStateStarted, wi.State)
}

func Test_Client_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()

	b := &conflictingBackend{Backend: memory.NewMemoryBackend(), conflicts: 100}
	c := newClient(t, b, func(o *Options) {
		o.MaxRetries = 2
	})

	_, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.ErrorIs(t, err, core.ErrConcurrentModification)
	require.Equal(t, 3, b.updates)
}

func Test_Client_DoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()

	b := &conflictingBackend{Backend: memory.NewMemoryBackend()}
	c := newClient(t, b)

	_, err := c.InitializeWorkflow(ctx, "unknown", "v1")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.Equal(t, 0, b.updates)

	err = c.StartWorkItem(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func Test_Client_WaitForWorkflow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, memory.NewMemoryBackend())

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)

	wi := work(t, ctx, c, id)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = c.CompleteWorkItem(ctx, wi, "done")
	}()

	inst, err := c.WaitForWorkflow(ctx, id, time.Second*5)
	require.NoError(t, err)
	require.Equal(t, core.WorkflowStateCompleted, inst.State)
}

func Test_Client_WaitForWorkflow_Failed(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, memory.NewMemoryBackend())

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)

	wi := work(t, ctx, c, id)
	require.NoError(t, c.FailWorkItem(ctx, wi, errors.New("out of stock")))

	inst, err := c.WaitForWorkflow(ctx, id, time.Second)
	require.ErrorIs(t, err, ErrWorkflowFailed)
	require.ErrorContains(t, err, "out of stock")
	require.Equal(t, core.WorkflowStateFailed, inst.State)
}

func Test_Client_WaitForWorkflow_Canceled(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, memory.NewMemoryBackend())

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)

	require.NoError(t, c.CancelWorkflow(ctx, id))

	_, err = c.WaitForWorkflow(ctx, id, time.Second)
	require.ErrorIs(t, err, ErrWorkflowCanceled)
}

func Test_Client_WaitForWorkflow_Timeout(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, memory.NewMemoryBackend())

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)

	_, err = c.WaitForWorkflow(ctx, id, time.Millisecond*20)
	require.ErrorIs(t, err, ErrWaitTimeout)
}

func Test_Client_CancelWorkItem(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, memory.NewMemoryBackend())

	id, err := c.InitializeWorkflow(ctx, "single", "v1")
	require.NoError(t, err)

	wi := work(t, ctx, c, id)
	require.NoError(t, c.CancelWorkItem(ctx, wi))

	item, err := c.Engine().GetWorkItem(ctx, wi)
	require.NoError(t, err)
	require.Equal(t, core.WorkItemStateCanceled, item.State)
}
