package state

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
	"github.com/cschleiden/go-wfnet/registry"
)

func setup(t *testing.T) (backend.Backend, Options) {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.Register(definition.New("wf", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()))

	return memory.NewMemoryBackend(), Options{Clock: clock.NewMock(), Resolver: r}
}

func create(t *testing.T, ctx context.Context, b backend.Backend, opts Options, id string) {
	t.Helper()

	err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		u := NewUnit(tx, opts)
		u.SetScope(audit.Scope{TraceID: audit.NewTraceID()})

		def, err := u.Resolve("wf", "v1")
		if err != nil {
			return err
		}

		u.CreateInstance(core.NewWorkflowInstance(id, "wf", "v1", u.Recorder.Scope().TraceID, u.Now()), def)

		return u.Commit(ctx)
	})
	require.NoError(t, err)
}

func Test_Instance_CreateAndLoad(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)

	create(t, ctx, b, opts, "wf-1")

	err := b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := Load(ctx, tx, "wf-1")
		require.NoError(t, err)

		require.Equal(t, core.WorkflowStateInitialized, inst.Workflow.State)
		require.Equal(t, int64(1), inst.Version())
		require.Len(t, inst.Tasks, 1)
		require.Equal(t, core.TaskStateDisabled, inst.Task("a").State)
		require.Equal(t, 1, inst.Task("a").Generation)
		require.Len(t, inst.Conditions, 2)
		require.Equal(t, 0, inst.Marking("start"))

		return nil
	})
	require.NoError(t, err)

	err = b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		_, err := Load(ctx, tx, "missing")
		return err
	})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func Test_Instance_SaveOnlyWritesChanges(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)

	create(t, ctx, b, opts, "wf-1")

	err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := Load(ctx, tx, "wf-1")
		require.NoError(t, err)

		changed, err := inst.Save(ctx, tx)
		require.NoError(t, err)
		require.False(t, changed)

		inst.Condition("start").Marking = 1

		changed, err = inst.Save(ctx, tx)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, int64(2), inst.Version())

		return nil
	})
	require.NoError(t, err)

	err = b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := Load(ctx, tx, "wf-1")
		require.NoError(t, err)
		require.Equal(t, 1, inst.Marking("start"))

		// The instance record is rewritten with every change
		require.Equal(t, int64(2), inst.Version())

		return nil
	})
	require.NoError(t, err)
}

func Test_Instance_ConcurrentChangesConflict(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)

	create(t, ctx, b, opts, "wf-1")

	var stale *Instance
	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		stale, err = Load(ctx, tx, "wf-1")
		return err
	}))

	require.NoError(t, b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := Load(ctx, tx, "wf-1")
		if err != nil {
			return err
		}

		inst.Condition("start").Marking = 1
		_, err = inst.Save(ctx, tx)
		return err
	}))

	// A change to a different record of the same aggregate still conflicts
	err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		stale.Condition("end").Marking = 1
		_, err := stale.Save(ctx, tx)
		return err
	})
	require.ErrorIs(t, err, core.ErrConcurrentModification)
	require.True(t, core.IsRetryable(err))
}

func Test_Instance_Clone(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)

	create(t, ctx, b, opts, "wf-1")

	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		inst, err := Load(ctx, tx, "wf-1")
		require.NoError(t, err)

		inst.Condition("start").Marking = 5

		c, err := inst.Clone()
		require.NoError(t, err)

		// Unsaved changes are not part of the copy
		require.Equal(t, 0, c.Marking("start"))
		require.Equal(t, inst.Version(), c.Version())

		c.Task("a").State = core.TaskStateEnabled
		require.Equal(t, core.TaskStateDisabled, inst.Task("a").State)

		return nil
	}))
}

type fakeCache struct {
	inst *Instance
	hits int
}

func (c *fakeCache) Get(id string, version int64) (*Instance, bool) {
	if c.inst == nil || c.inst.Workflow.ID != id || c.inst.Version() != version {
		return nil, false
	}

	c.hits++
	inst, _ := c.inst.Clone()
	return inst, true
}

func Test_Unit_LoadUsesCacheForCurrentVersion(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)

	create(t, ctx, b, opts, "wf-1")

	cache := &fakeCache{}
	opts.Cache = cache

	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		cache.inst, err = Load(ctx, tx, "wf-1")
		return err
	}))

	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		u := NewUnit(tx, opts)
		inst, err := u.Load(ctx, "wf-1")
		require.NoError(t, err)
		require.Equal(t, 1, cache.hits)

		// Loaded once per unit
		again, err := u.Load(ctx, "wf-1")
		require.NoError(t, err)
		require.Same(t, inst, again)
		require.Equal(t, 1, cache.hits)

		return nil
	}))
}

func Test_Unit_PendingWork(t *testing.T) {
	ctx := context.Background()
	b, opts := setup(t)
	mock := opts.Clock.(*clock.Mock)

	traceID := audit.NewTraceID()

	require.NoError(t, b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		u := NewUnit(tx, opts)
		u.SetScope(audit.Scope{TraceID: traceID})

		u.Enqueue(PendingStartWorkflow, "a", nil)
		mock.Add(time.Second)
		u.Enqueue(PendingChildFinished, "b", &ChildResult{WorkflowInstanceID: "c", State: core.WorkflowStateCompleted})

		return u.Commit(ctx)
	}))

	var pending []*PendingWork
	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		pending, err = ListPending(ctx, tx, 0)
		return err
	}))
	require.Len(t, pending, 2)
	require.Equal(t, PendingStartWorkflow, pending[0].Kind)
	require.Equal(t, "c", pending[1].Child.WorkflowInstanceID)
	require.Equal(t, traceID, pending[1].TraceID())

	claim := func() error {
		return b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
			return NewUnit(tx, opts).Claim(ctx, pending[0])
		})
	}

	require.NoError(t, claim())
	require.ErrorIs(t, claim(), core.ErrConcurrentModification)

	require.NoError(t, b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		rest, err := ListPendingForTrace(ctx, tx, traceID, 10)
		require.Len(t, rest, 1)
		return err
	}))
}
