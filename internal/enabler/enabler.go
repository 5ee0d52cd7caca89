package enabler

import (
	"fmt"
	"slices"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/marking"
	"github.com/cschleiden/go-wfnet/internal/state"
)

// Evaluate checks the join of the task against the current marking. It returns the tokens enabling the
// task would consume per input condition.
//
//   - AND: every input holds a token, one is consumed from each.
//   - XOR: the first input in declaration order holding a token, one is consumed from it.
//   - OR: at least one input holds a token, all tokens of every marked input are consumed.
func Evaluate(inst *state.Instance, join core.JoinType, inputs []string) (map[string]int, bool) {
	switch join {
	case core.JoinAND:
		for _, in := range inputs {
			if inst.Marking(in) < 1 {
				return nil, false
			}
		}

		consume := make(map[string]int, len(inputs))
		for _, in := range inputs {
			consume[in] = 1
		}

		return consume, true

	case core.JoinXOR:
		for _, in := range inputs {
			if inst.Marking(in) >= 1 {
				return map[string]int{in: 1}, true
			}
		}

	case core.JoinOR:
		consume := make(map[string]int)
		for _, in := range inputs {
			if n := inst.Marking(in); n >= 1 {
				consume[in] = n
			}
		}

		if len(consume) > 0 {
			return consume, true
		}
	}

	return nil, false
}

// TryEnable enables the task if its join is satisfied and no generation of it is active. A disabled latest
// generation is enabled in place; a terminal latest generation is followed by a new generation. It returns
// nil if the task was not enabled.
func TryEnable(u *state.Unit, inst *state.Instance, t *definition.Task) (*core.TaskInstance, error) {
	latest := inst.Task(t.Name)
	if latest != nil && latest.State.Active() {
		return nil, nil
	}

	consume, ok := Evaluate(inst, t.Join, t.Inputs)
	if !ok {
		return nil, nil
	}

	ti := latest
	switch {
	case latest == nil:
		ti = u.AddTaskGeneration(inst, t, 1)
	case latest.State.Terminal():
		ti = u.AddTaskGeneration(inst, t, latest.Generation+1)
	}

	span, err := u.SetTaskState(inst, ti, core.TaskStateEnabled)
	if err != nil {
		return nil, err
	}

	ti.Consumed = consume

	err = u.Within(span, func() error {
		for _, in := range t.Inputs {
			if n := consume[in]; n > 0 {
				if _, err := marking.Decrement(u, inst, in, n); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ti, nil
}

// CheckStartable reports why the named task cannot be worked on: core.ErrJoinNotSatisfied if its join is
// not satisfied, core.ErrTaskNotEnabled otherwise. Active tasks are startable.
func CheckStartable(inst *state.Instance, name string) error {
	latest := inst.Task(name)
	if latest == nil {
		return fmt.Errorf("task %q: %w", name, core.ErrNotFound)
	}

	if latest.State.Active() {
		return nil
	}

	if _, ok := Evaluate(inst, latest.Join, latest.Inputs); !ok {
		return fmt.Errorf("task %q is %s: %w: %w", name, latest.State, core.ErrTaskNotEnabled, core.ErrJoinNotSatisfied)
	}

	return fmt.Errorf("task %q is %s: %w", name, latest.State, core.ErrTaskNotEnabled)
}

// StartTask claims an enabled task. Starting an already started task is a no-op.
func StartTask(u *state.Unit, inst *state.Instance, ti *core.TaskInstance) (*audit.Span, error) {
	switch ti.State {
	case core.TaskStateStarted:
		return nil, nil
	case core.TaskStateEnabled:
		return u.SetTaskState(inst, ti, core.TaskStateStarted)
	}

	return nil, fmt.Errorf("task %s is %s: %w", ti.ID(), ti.State, core.ErrTaskNotEnabled)
}

// Split returns the output conditions that receive a token when the task completes with the given routing
// decision.
func Split(ti *core.TaskInstance, route []string) ([]string, error) {
	for _, r := range route {
		if !slices.Contains(ti.Outputs, r) {
			return nil, fmt.Errorf("task %s: %q is not an output: %w", ti.ID(), r, core.ErrInvalidSplitSelection)
		}
	}

	if hasDuplicates(route) {
		return nil, fmt.Errorf("task %s: duplicate outputs in route: %w", ti.ID(), core.ErrInvalidSplitSelection)
	}

	switch ti.Split {
	case core.SplitAND:
		return slices.Clone(ti.Outputs), nil

	case core.SplitXOR:
		if len(route) == 0 {
			if len(ti.Outputs) == 1 {
				return slices.Clone(ti.Outputs), nil
			}

			return nil, fmt.Errorf("task %s: %w", ti.ID(), core.ErrRoutingDecisionRequired)
		}

		if len(route) > 1 {
			return nil, fmt.Errorf("task %s: XOR split selects exactly one output, got %d: %w", ti.ID(), len(route), core.ErrInvalidSplitSelection)
		}

		return slices.Clone(route), nil

	case core.SplitOR:
		if len(route) == 0 {
			if len(ti.Outputs) == 1 {
				return slices.Clone(ti.Outputs), nil
			}

			return nil, fmt.Errorf("task %s: %w", ti.ID(), core.ErrRoutingDecisionRequired)
		}

		// Produce in declaration order
		var outputs []string
		for _, out := range ti.Outputs {
			if slices.Contains(route, out) {
				outputs = append(outputs, out)
			}
		}

		return outputs, nil
	}

	return nil, fmt.Errorf("task %s: unknown split type %q: %w", ti.ID(), ti.Split, core.ErrInvalidSplitSelection)
}

// CompleteTask completes a started task: it clears the cancellation region of the task and produces
// tokens on the outputs selected by the split.
func CompleteTask(u *state.Unit, inst *state.Instance, ti *core.TaskInstance, route []string) error {
	outputs, err := Split(ti, route)
	if err != nil {
		return err
	}

	def, err := u.TaskDefinition(inst, ti.Name)
	if err != nil {
		return err
	}

	span, err := u.SetTaskState(inst, ti, core.TaskStateCompleted)
	if err != nil {
		return err
	}

	ti.Route = outputs
	span.Attributes[audit.AttrRoute] = outputs

	return u.Within(span, func() error {
		if cr := def.CancelRegion; cr != nil {
			for _, name := range cr.Tasks {
				if t := inst.Task(name); t != nil && t.State.Active() {
					if err := CancelTask(u, inst, t); err != nil {
						return err
					}
				}
			}

			for _, name := range cr.Conditions {
				if _, err := marking.Reset(u, inst, name); err != nil {
					return err
				}
			}
		}

		for _, out := range outputs {
			if _, err := marking.Increment(u, inst, out, 1); err != nil {
				return err
			}
		}

		return nil
	})
}

// FailTask fails the task and cancels its remaining active work items.
func FailTask(u *state.Unit, inst *state.Instance, ti *core.TaskInstance) error {
	span, err := u.SetTaskState(inst, ti, core.TaskStateFailed)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		return cancelWorkItems(u, inst, ti)
	})
}

// CancelTask cancels a non-terminal task generation together with its active work items. The sub-workflow
// of a composite task is canceled through pending work. Terminal tasks are left untouched.
func CancelTask(u *state.Unit, inst *state.Instance, ti *core.TaskInstance) error {
	if ti.State.Terminal() {
		return nil
	}

	span, err := u.SetTaskState(inst, ti, core.TaskStateCanceled)
	if err != nil {
		return err
	}

	return u.Within(span, func() error {
		if err := cancelWorkItems(u, inst, ti); err != nil {
			return err
		}

		if ti.Composite && ti.ChildWorkflowInstanceID != "" {
			u.Enqueue(state.PendingCancelWorkflow, ti.ChildWorkflowInstanceID, nil)
		}

		return nil
	})
}

func cancelWorkItems(u *state.Unit, inst *state.Instance, ti *core.TaskInstance) error {
	for _, wi := range inst.WorkItemsForGeneration(ti.Name, ti.Generation) {
		if wi.State.Terminal() {
			continue
		}

		if _, err := u.SetWorkItemState(inst, wi, core.WorkItemStateCanceled); err != nil {
			return err
		}
	}

	return nil
}

func hasDuplicates(s []string) bool {
	seen := make(map[string]bool, len(s))
	for _, v := range s {
		if seen[v] {
			return true
		}
		seen[v] = true
	}

	return false
}
