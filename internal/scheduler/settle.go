package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/internal/composite"
	"github.com/cschleiden/go-wfnet/internal/enabler"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/internal/workflows"
	"github.com/cschleiden/go-wfnet/internal/workitems"
)

const DefaultMaxSettleIterations = 1000

// Settle applies automatic transitions to the started instances of the unit until none applies: enabling
// tasks whose join is satisfied, reacting to newly enabled tasks, and completing instances whose end
// condition is marked. Settling an already settled unit changes nothing.
func Settle(ctx context.Context, u *state.Unit, maxIterations int) error {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxSettleIterations
	}

	for i := 0; i < maxIterations; i++ {
		changed := false

		for _, inst := range slices.Clone(u.Instances()) {
			c, err := settleInstance(ctx, u, inst)
			if err != nil {
				return err
			}

			changed = changed || c
		}

		if !changed {
			return nil
		}
	}

	return fmt.Errorf("automatic transitions did not settle after %d iterations", maxIterations)
}

func settleInstance(ctx context.Context, u *state.Unit, inst *state.Instance) (bool, error) {
	if inst.Workflow.State != core.WorkflowStateStarted {
		return false, nil
	}

	def, err := u.Definition(inst)
	if err != nil {
		return false, err
	}

	changed := false

	for i := range def.Tasks {
		t := &def.Tasks[i]

		ti, err := enabler.TryEnable(u, inst, t)
		if err != nil {
			return false, err
		}

		if ti == nil {
			continue
		}

		changed = true

		if err := react(ctx, u, inst, t, ti); err != nil {
			return false, err
		}
	}

	completed, err := workflows.TryComplete(u, inst)
	if err != nil {
		return false, err
	}

	return changed || completed, nil
}

// react runs the automatic behavior of a freshly enabled task.
func react(ctx context.Context, u *state.Unit, inst *state.Instance, t *definition.Task, ti *core.TaskInstance) error {
	switch t.Kind {
	case definition.KindComposite:
		_, err := composite.Spawn(u, inst, ti, t)
		return err

	case definition.KindDummy:
		if _, err := enabler.StartTask(u, inst, ti); err != nil {
			return err
		}

		route, err := u.Route(ctx, inst, ti, nil)
		if err != nil {
			return err
		}

		return enabler.CompleteTask(u, inst, ti, route)

	default:
		if t.AutoWorkItem {
			workitems.Auto(u, inst, ti)
		}
	}

	return nil
}
