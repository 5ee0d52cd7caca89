package tester

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/registry"
)

// Tester bundles what unit tests of the engine internals need: a registry, a mock clock, and an in-memory
// backend.
type Tester struct {
	t *testing.T

	Clock    *clock.Mock
	Registry *registry.Registry
	Backend  backend.Backend

	Router core.Router
}

func New(t *testing.T, defs ...*definition.WorkflowVersion) *Tester {
	t.Helper()

	r := registry.New()
	for _, def := range defs {
		require.NoError(t, r.Register(def))
	}

	c := clock.NewMock()

	return &Tester{
		t:        t,
		Clock:    c,
		Registry: r,
		Backend:  memory.NewMemoryBackend(backend.WithClock(c)),
	}
}

func (ts *Tester) Options() state.Options {
	return state.Options{
		Clock:    ts.Clock,
		Resolver: ts.Registry,
		Router:   ts.Router,
	}
}

// Unit returns a unit that is not backed by a transaction. It can create instances but not load them.
func (ts *Tester) Unit() *state.Unit {
	u := state.NewUnit(nil, ts.Options())
	u.SetScope(audit.Scope{TraceID: audit.NewTraceID()})

	return u
}

// Instance creates a started instance of the given workflow with a token on its start condition.
func (ts *Tester) Instance(u *state.Unit, name string) *state.Instance {
	ts.t.Helper()

	def, err := ts.Registry.Resolve(name, "")
	require.NoError(ts.t, err)

	inst := u.CreateInstance(core.NewWorkflowInstance(name+"-1", def.Name, def.Version, u.Recorder.Scope().TraceID, u.Now()), def)

	_, err = u.SetWorkflowState(inst, core.WorkflowStateStarted, nil)
	require.NoError(ts.t, err)

	u.SetMarking(inst, inst.Condition(def.StartCondition), 1, "increment")

	return inst
}

// Update runs fn in a unit backed by a transaction of the tester backend and commits it.
func (ts *Tester) Update(fn func(ctx context.Context, u *state.Unit) error) *state.Unit {
	ts.t.Helper()

	var unit *state.Unit
	err := ts.Backend.Update(context.Background(), func(ctx context.Context, tx backend.Tx) error {
		unit = state.NewUnit(tx, ts.Options())
		unit.SetScope(audit.Scope{TraceID: audit.NewTraceID()})

		if err := fn(ctx, unit); err != nil {
			return err
		}

		return unit.Commit(ctx)
	})
	require.NoError(ts.t, err)

	return unit
}

// Operations returns the operations of the given spans in recording order.
func Operations(spans []*audit.Span) []string {
	ops := make([]string, 0, len(spans))
	for _, s := range spans {
		ops = append(ops, s.Operation)
	}

	return ops
}
