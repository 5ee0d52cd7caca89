package enabler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/tester"
)

func net() *definition.WorkflowVersion {
	return definition.New("net", "v1").
		Condition("start", "p1", "p2", "c", "d", "end").
		Task("split", definition.From("start"), definition.To("p1", "p2")).
		Task("join", definition.From("p1", "p2"), definition.To("c", "d"), definition.Split(core.SplitXOR)).
		Task("finish", definition.From("c", "d"), definition.Join(core.JoinXOR), definition.To("end")).
		MustBuild()
}

func setup(t *testing.T) (*state.Unit, *state.Instance, *definition.WorkflowVersion) {
	def := net()
	ts := tester.New(t, def)
	u := ts.Unit()

	return u, ts.Instance(u, "net"), def
}

func task(t *testing.T, def *definition.WorkflowVersion, name string) *definition.Task {
	td, ok := def.Task(name)
	require.True(t, ok)
	return td
}

func mark(u *state.Unit, inst *state.Instance, markings map[string]int) {
	for name, m := range markings {
		u.SetMarking(inst, inst.Condition(name), m, "increment")
	}
}

func Test_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		join     core.JoinType
		markings map[string]int
		want     map[string]int
		ok       bool
	}{
		{"AND none", core.JoinAND, map[string]int{}, nil, false},
		{"AND partial", core.JoinAND, map[string]int{"p1": 1}, nil, false},
		{"AND all", core.JoinAND, map[string]int{"p1": 2, "p2": 1}, map[string]int{"p1": 1, "p2": 1}, true},
		{"XOR none", core.JoinXOR, map[string]int{}, nil, false},
		{"XOR first in declaration order", core.JoinXOR, map[string]int{"p1": 1, "p2": 1}, map[string]int{"p1": 1}, true},
		{"XOR second", core.JoinXOR, map[string]int{"p2": 1}, map[string]int{"p2": 1}, true},
		{"OR none", core.JoinOR, map[string]int{}, nil, false},
		{"OR one", core.JoinOR, map[string]int{"p2": 3}, map[string]int{"p2": 3}, true},
		{"OR all marked", core.JoinOR, map[string]int{"p1": 1, "p2": 1}, map[string]int{"p1": 1, "p2": 1}, true},
		{"OR consumes every token", core.JoinOR, map[string]int{"p1": 2, "p2": 1}, map[string]int{"p1": 2, "p2": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, inst, _ := setup(t)
			mark(u, inst, tt.markings)

			got, ok := Evaluate(inst, tt.join, []string{"p1", "p2"})
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_TryEnable_ANDJoin(t *testing.T) {
	u, inst, def := setup(t)
	join := task(t, def, "join")

	mark(u, inst, map[string]int{"p1": 1})

	ti, err := TryEnable(u, inst, join)
	require.NoError(t, err)
	require.Nil(t, ti)
	require.Equal(t, core.TaskStateDisabled, inst.Task("join").State)

	mark(u, inst, map[string]int{"p2": 1})

	ti, err = TryEnable(u, inst, join)
	require.NoError(t, err)
	require.NotNil(t, ti)
	require.Equal(t, core.TaskStateEnabled, ti.State)
	require.Equal(t, 1, ti.Generation)
	require.Equal(t, map[string]int{"p1": 1, "p2": 1}, ti.Consumed)
	require.Equal(t, 0, inst.Marking("p1"))
	require.Equal(t, 0, inst.Marking("p2"))
}

func Test_TryEnable_Generations(t *testing.T) {
	u, inst, def := setup(t)
	split := task(t, def, "split")

	ti, err := TryEnable(u, inst, split)
	require.NoError(t, err)
	require.Equal(t, 1, ti.Generation)

	// An active generation is never enabled twice, the token stays in place
	mark(u, inst, map[string]int{"start": 1})
	again, err := TryEnable(u, inst, split)
	require.NoError(t, err)
	require.Nil(t, again)
	require.Equal(t, 1, inst.Marking("start"))

	_, err = StartTask(u, inst, ti)
	require.NoError(t, err)
	require.NoError(t, CompleteTask(u, inst, ti, nil))

	ti2, err := TryEnable(u, inst, split)
	require.NoError(t, err)
	require.Equal(t, 2, ti2.Generation)
	require.Equal(t, core.TaskStateEnabled, ti2.State)

	// The first generation is history
	require.Equal(t, core.TaskStateCompleted, inst.TaskGeneration("split", 1).State)
	require.Len(t, inst.TaskGenerations("split"), 2)

	active := 0
	for _, g := range inst.TaskGenerations("split") {
		if g.State.Active() {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func Test_Split(t *testing.T) {
	ti := func(split core.SplitType, outputs ...string) *core.TaskInstance {
		return &core.TaskInstance{WorkflowInstanceID: "wf", Name: "t", Generation: 1, Split: split, Outputs: outputs}
	}

	tests := []struct {
		name    string
		task    *core.TaskInstance
		route   []string
		want    []string
		wantErr error
	}{
		{"AND produces all", ti(core.SplitAND, "a", "b"), nil, []string{"a", "b"}, nil},
		{"AND ignores valid route", ti(core.SplitAND, "a", "b"), []string{"a"}, []string{"a", "b"}, nil},
		{"AND rejects undeclared", ti(core.SplitAND, "a", "b"), []string{"x"}, nil, core.ErrInvalidSplitSelection},
		{"XOR requires decision", ti(core.SplitXOR, "a", "b"), nil, nil, core.ErrRoutingDecisionRequired},
		{"XOR single output", ti(core.SplitXOR, "a"), nil, []string{"a"}, nil},
		{"XOR single output named", ti(core.SplitXOR, "a"), []string{"a"}, []string{"a"}, nil},
		{"XOR single output wrong", ti(core.SplitXOR, "a"), []string{"b"}, nil, core.ErrInvalidSplitSelection},
		{"XOR one", ti(core.SplitXOR, "a", "b"), []string{"b"}, []string{"b"}, nil},
		{"XOR two", ti(core.SplitXOR, "a", "b"), []string{"a", "b"}, nil, core.ErrInvalidSplitSelection},
		{"XOR undeclared", ti(core.SplitXOR, "a", "b"), []string{"c"}, nil, core.ErrInvalidSplitSelection},
		{"OR requires decision", ti(core.SplitOR, "a", "b"), nil, nil, core.ErrRoutingDecisionRequired},
		{"OR subset in declaration order", ti(core.SplitOR, "a", "b", "c"), []string{"c", "a"}, []string{"a", "c"}, nil},
		{"OR duplicates", ti(core.SplitOR, "a", "b"), []string{"a", "a"}, nil, core.ErrInvalidSplitSelection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.task, tt.route)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_CompleteTask_XORSplitIsExclusive(t *testing.T) {
	u, inst, def := setup(t)

	mark(u, inst, map[string]int{"p1": 1, "p2": 1})

	ti, err := TryEnable(u, inst, task(t, def, "join"))
	require.NoError(t, err)
	_, err = StartTask(u, inst, ti)
	require.NoError(t, err)

	err = CompleteTask(u, inst, ti, nil)
	require.ErrorIs(t, err, core.ErrRoutingDecisionRequired)
	require.Equal(t, core.TaskStateStarted, ti.State)

	require.NoError(t, CompleteTask(u, inst, ti, []string{"d"}))
	require.Equal(t, core.TaskStateCompleted, ti.State)
	require.Equal(t, []string{"d"}, ti.Route)
	require.Equal(t, 0, inst.Marking("c"))
	require.Equal(t, 1, inst.Marking("d"))
}

func Test_CompleteTask_RequiresStartedTask(t *testing.T) {
	u, inst, def := setup(t)

	ti, err := TryEnable(u, inst, task(t, def, "split"))
	require.NoError(t, err)

	err = CompleteTask(u, inst, ti, nil)
	require.ErrorIs(t, err, core.ErrInvalidTransition)
}

func Test_CompleteTask_CancelRegion(t *testing.T) {
	def := definition.New("region", "v1").
		Condition("start", "a", "b", "stale", "end").
		Task("fork", definition.From("start"), definition.To("a", "b")).
		Task("fast", definition.From("a"), definition.To("end"), definition.Cancels([]string{"slow"}, []string{"stale"})).
		Task("slow", definition.From("b"), definition.To("stale")).
		Task("drain", definition.From("stale"), definition.To("end")).
		MustBuild()

	ts := tester.New(t, def)
	u := ts.Unit()
	inst := ts.Instance(u, "region")

	u.SetMarking(inst, inst.Condition("a"), 1, "increment")
	u.SetMarking(inst, inst.Condition("b"), 1, "increment")
	u.SetMarking(inst, inst.Condition("stale"), 2, "increment")

	fast, err := TryEnable(u, inst, task(t, def, "fast"))
	require.NoError(t, err)
	slow, err := TryEnable(u, inst, task(t, def, "slow"))
	require.NoError(t, err)

	u.AddWorkItem(inst, slow, "wi-1", nil)

	_, err = StartTask(u, inst, fast)
	require.NoError(t, err)
	require.NoError(t, CompleteTask(u, inst, fast, nil))

	require.Equal(t, core.TaskStateCanceled, slow.State)
	require.Equal(t, core.WorkItemStateCanceled, inst.WorkItem("wi-1").State)
	require.Equal(t, 0, inst.Marking("stale"))
	require.Equal(t, 1, inst.Marking("end"))
}

func Test_CheckStartable(t *testing.T) {
	u, inst, def := setup(t)

	err := CheckStartable(inst, "join")
	require.ErrorIs(t, err, core.ErrJoinNotSatisfied)
	require.ErrorIs(t, err, core.ErrTaskNotEnabled)

	err = CheckStartable(inst, "unknown")
	require.ErrorIs(t, err, core.ErrNotFound)

	// Join satisfied but not yet enabled
	err = CheckStartable(inst, "split")
	require.ErrorIs(t, err, core.ErrTaskNotEnabled)
	require.NotErrorIs(t, err, core.ErrJoinNotSatisfied)

	_, err = TryEnable(u, inst, task(t, def, "split"))
	require.NoError(t, err)
	require.NoError(t, CheckStartable(inst, "split"))
}

func Test_CancelTask_Composite(t *testing.T) {
	u, inst, def := setup(t)

	ti, err := TryEnable(u, inst, task(t, def, "split"))
	require.NoError(t, err)

	ti.Composite = true
	ti.ChildWorkflowInstanceID = "child-1"

	require.NoError(t, CancelTask(u, inst, ti))
	require.Equal(t, core.TaskStateCanceled, ti.State)

	pending := u.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, state.PendingCancelWorkflow, pending[0].Kind)
	require.Equal(t, "child-1", pending[0].WorkflowInstanceID)

	// Canceling again is a no-op
	require.NoError(t, CancelTask(u, inst, ti))
	require.Len(t, u.Pending(), 1)
}
