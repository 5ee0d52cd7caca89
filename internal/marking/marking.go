package marking

import (
	"fmt"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/state"
)

// Increment adds delta tokens to the condition.
func Increment(u *state.Unit, inst *state.Instance, condition string, delta int) (*audit.Span, error) {
	c, err := lookup(inst, condition, delta)
	if err != nil {
		return nil, err
	}

	return u.SetMarking(inst, c, c.Marking+delta, "increment"), nil
}

// Decrement removes delta tokens from the condition. It fails with core.ErrInsufficientMarking instead of
// letting the marking go negative.
func Decrement(u *state.Unit, inst *state.Instance, condition string, delta int) (*audit.Span, error) {
	c, err := lookup(inst, condition, delta)
	if err != nil {
		return nil, err
	}

	if c.Marking < delta {
		return nil, fmt.Errorf("condition %q has %d tokens, cannot consume %d: %w", condition, c.Marking, delta, core.ErrInsufficientMarking)
	}

	return u.SetMarking(inst, c, c.Marking-delta, "decrement"), nil
}

// Reset removes all tokens from the condition. Unmarked conditions are left untouched.
func Reset(u *state.Unit, inst *state.Instance, condition string) (*audit.Span, error) {
	c := inst.Condition(condition)
	if c == nil {
		return nil, fmt.Errorf("condition %q: %w", condition, core.ErrUnknownCondition)
	}

	if c.Marking == 0 {
		return nil, nil
	}

	return u.SetMarking(inst, c, 0, "reset"), nil
}

func lookup(inst *state.Instance, condition string, delta int) (*core.ConditionInstance, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("condition %q: delta must be positive, got %d: %w", condition, delta, core.ErrInvalidTransition)
	}

	c := inst.Condition(condition)
	if c == nil {
		return nil, fmt.Errorf("condition %q: %w", condition, core.ErrUnknownCondition)
	}

	return c, nil
}
