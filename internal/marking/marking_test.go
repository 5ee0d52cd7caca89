package marking

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/state"
)

func newInstance(t *testing.T) (*state.Unit, *state.Instance) {
	t.Helper()

	def := definition.New("wf", "v1").
		Condition("start", "end").
		Task("a", definition.From("start"), definition.To("end")).
		MustBuild()

	u := state.NewUnit(nil, state.Options{Clock: clock.NewMock()})
	u.SetScope(audit.Scope{TraceID: audit.NewTraceID()})

	return u, u.CreateInstance(core.NewWorkflowInstance("wf-1", "wf", "v1", u.Recorder.Scope().TraceID, u.Now()), def)
}

func Test_IncrementDecrement(t *testing.T) {
	u, inst := newInstance(t)

	span, err := Increment(u, inst, "start", 2)
	require.NoError(t, err)
	require.Equal(t, 2, inst.Marking("start"))
	require.Equal(t, "condition.increment", span.Operation)
	require.Equal(t, 0, span.Attributes[audit.AttrMarkingOld])
	require.Equal(t, 2, span.Attributes[audit.AttrMarkingNew])

	_, err = Decrement(u, inst, "start", 1)
	require.NoError(t, err)
	require.Equal(t, 1, inst.Marking("start"))
}

func Test_Decrement_NeverNegative(t *testing.T) {
	u, inst := newInstance(t)

	_, err := Increment(u, inst, "start", 1)
	require.NoError(t, err)

	spans := u.Recorder.Len()

	_, err = Decrement(u, inst, "start", 2)
	require.ErrorIs(t, err, core.ErrInsufficientMarking)
	require.Equal(t, 1, inst.Marking("start"))
	require.Equal(t, spans, u.Recorder.Len())
}

func Test_Errors(t *testing.T) {
	u, inst := newInstance(t)

	_, err := Increment(u, inst, "nope", 1)
	require.ErrorIs(t, err, core.ErrUnknownCondition)

	_, err = Decrement(u, inst, "nope", 1)
	require.ErrorIs(t, err, core.ErrUnknownCondition)

	_, err = Increment(u, inst, "start", 0)
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = Decrement(u, inst, "start", -1)
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = Reset(u, inst, "nope")
	require.ErrorIs(t, err, core.ErrUnknownCondition)
}

func Test_Reset(t *testing.T) {
	u, inst := newInstance(t)

	span, err := Reset(u, inst, "start")
	require.NoError(t, err)
	require.Nil(t, span)

	_, err = Increment(u, inst, "start", 3)
	require.NoError(t, err)

	span, err = Reset(u, inst, "start")
	require.NoError(t, err)
	require.Equal(t, "condition.reset", span.Operation)
	require.Equal(t, 0, inst.Marking("start"))
}
