package instancecache

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/metrics"
	"github.com/cschleiden/go-wfnet/internal/state"
)

func saved(t *testing.T, id string) *state.Instance {
	t.Helper()

	def := definition.New("wf", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()

	b := memory.NewMemoryBackend()

	var inst *state.Instance
	err := b.Update(context.Background(), func(ctx context.Context, tx backend.Tx) error {
		c := clock.NewMock()
		c.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

		u := state.NewUnit(tx, state.Options{Clock: c})
		u.SetScope(audit.Scope{TraceID: audit.NewTraceID()})
		inst = u.CreateInstance(core.NewWorkflowInstance(id, "wf", "v1", u.Recorder.Scope().TraceID, u.Now()), def)

		return u.Commit(ctx)
	})
	require.NoError(t, err)

	return inst
}

func Test_Cache_PutAndGet(t *testing.T) {
	c := New(metrics.NewNoopMetricsClient(), 10, time.Minute)

	inst := saved(t, "wf-1")
	require.NoError(t, c.Put(inst))

	got, ok := c.Get("wf-1", inst.Version())
	require.True(t, ok)
	require.Equal(t, inst.Workflow, got.Workflow)
	require.NotSame(t, inst.Workflow, got.Workflow)

	// Modifying the copy does not change the cache
	got.Workflow.State = core.WorkflowStateStarted

	again, ok := c.Get("wf-1", inst.Version())
	require.True(t, ok)
	require.Equal(t, core.WorkflowStateInitialized, again.Workflow.State)
}

func Test_Cache_StaleVersionMisses(t *testing.T) {
	c := New(metrics.NewNoopMetricsClient(), 10, time.Minute)

	inst := saved(t, "wf-1")
	require.NoError(t, c.Put(inst))

	_, ok := c.Get("wf-1", inst.Version()+1)
	require.False(t, ok)

	// Stale entries are dropped
	_, ok = c.Get("wf-1", inst.Version())
	require.False(t, ok)
}

func Test_Cache_EvictsOverCapacity(t *testing.T) {
	c := New(metrics.NewNoopMetricsClient(), 1, time.Minute)

	i1 := saved(t, "wf-1")
	i2 := saved(t, "wf-2")

	require.NoError(t, c.Put(i1))
	require.NoError(t, c.Put(i2))

	_, ok := c.Get("wf-1", i1.Version())
	require.False(t, ok)

	_, ok = c.Get("wf-2", i2.Version())
	require.True(t, ok)
	require.Equal(t, 1, c.Len())
}
