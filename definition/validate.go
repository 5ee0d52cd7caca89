package definition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/cschleiden/go-wfnet/core"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structure of the workflow net. It returns an error wrapping
// ErrInvalidDefinition describing every problem found.
func (v *WorkflowVersion) Validate() error {
	var errs []error

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	errs = append(errs, v.validateGraph()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w %s@%s: %w", ErrInvalidDefinition, v.Name, v.Version, errors.Join(errs...))
	}

	return nil
}

func (v *WorkflowVersion) validateGraph() []error {
	var errs []error

	conditions := make(map[string]bool, len(v.Conditions))
	for _, c := range v.Conditions {
		if conditions[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate condition %q", c.Name))
		}
		conditions[c.Name] = true
	}

	if v.StartCondition != "" && !conditions[v.StartCondition] {
		errs = append(errs, fmt.Errorf("start condition %q is not declared", v.StartCondition))
	}

	if v.EndCondition != "" && !conditions[v.EndCondition] {
		errs = append(errs, fmt.Errorf("end condition %q is not declared", v.EndCondition))
	}

	if v.StartCondition != "" && v.StartCondition == v.EndCondition {
		errs = append(errs, fmt.Errorf("start and end condition must differ"))
	}

	tasks := make(map[string]bool, len(v.Tasks))
	for _, t := range v.Tasks {
		if tasks[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate task %q", t.Name))
		}
		if conditions[t.Name] {
			errs = append(errs, fmt.Errorf("task %q has the same name as a condition", t.Name))
		}
		tasks[t.Name] = true
	}

	for _, t := range v.Tasks {
		for _, in := range t.Inputs {
			if !conditions[in] {
				errs = append(errs, fmt.Errorf("task %q: input %q is not a declared condition", t.Name, in))
			}
			if in == v.EndCondition {
				errs = append(errs, fmt.Errorf("task %q: end condition %q cannot have a consumer", t.Name, in))
			}
		}

		for _, out := range t.Outputs {
			if !conditions[out] {
				errs = append(errs, fmt.Errorf("task %q: output %q is not a declared condition", t.Name, out))
			}
			if out == v.StartCondition {
				errs = append(errs, fmt.Errorf("task %q: start condition %q cannot have a producer", t.Name, out))
			}
		}

		if hasDuplicates(t.Inputs) {
			errs = append(errs, fmt.Errorf("task %q: duplicate inputs", t.Name))
		}

		if hasDuplicates(t.Outputs) {
			errs = append(errs, fmt.Errorf("task %q: duplicate outputs", t.Name))
		}

		errs = append(errs, v.validateTaskKind(&t, tasks, conditions)...)
	}

	return errs
}

func (v *WorkflowVersion) validateTaskKind(t *Task, tasks, conditions map[string]bool) []error {
	var errs []error

	switch t.Kind {
	case KindComposite:
		if t.Workflow == nil || t.Workflow.Name == "" {
			errs = append(errs, fmt.Errorf("task %q: composite task requires a sub-workflow", t.Name))
		}
	default:
		if t.Workflow != nil {
			errs = append(errs, fmt.Errorf("task %q: only composite tasks can reference a sub-workflow", t.Name))
		}
	}

	if t.AutoWorkItem && t.Kind != "" && t.Kind != KindWork {
		errs = append(errs, fmt.Errorf("task %q: automatic work items require a work task", t.Name))
	}

	for _, r := range t.DefaultRoute {
		if !slices.Contains(t.Outputs, r) {
			errs = append(errs, fmt.Errorf("task %q: default route %q is not an output", t.Name, r))
		}
	}

	if hasDuplicates(t.DefaultRoute) {
		errs = append(errs, fmt.Errorf("task %q: duplicate default route", t.Name))
	}

	if t.Split == core.SplitXOR && len(t.DefaultRoute) > 1 {
		errs = append(errs, fmt.Errorf("task %q: XOR split allows a single default route", t.Name))
	}

	automatic := t.Kind == KindDummy || t.Kind == KindComposite
	if automatic && t.Split != "" && t.Split != core.SplitAND && len(t.Outputs) > 1 && len(t.DefaultRoute) == 0 {
		errs = append(errs, fmt.Errorf("task %q: %s split of a %s task requires a default route", t.Name, t.Split, t.Kind))
	}

	if t.CancelRegion != nil {
		for _, name := range t.CancelRegion.Tasks {
			if !tasks[name] {
				errs = append(errs, fmt.Errorf("task %q: cancel region task %q is not declared", t.Name, name))
			}
		}

		for _, name := range t.CancelRegion.Conditions {
			if !conditions[name] {
				errs = append(errs, fmt.Errorf("task %q: cancel region condition %q is not declared", t.Name, name))
			}
		}
	}

	return errs
}

// Normalized returns a copy of the definition with defaults applied: work tasks, AND joins and AND
// splits unless declared otherwise.
func (v *WorkflowVersion) Normalized() *WorkflowVersion {
	n := &WorkflowVersion{
		Name:           v.Name,
		Version:        v.Version,
		StartCondition: v.StartCondition,
		EndCondition:   v.EndCondition,
		Conditions:     slices.Clone(v.Conditions),
		Tasks:          make([]Task, len(v.Tasks)),
	}

	for i, t := range v.Tasks {
		t.Inputs = slices.Clone(t.Inputs)
		t.Outputs = slices.Clone(t.Outputs)
		t.DefaultRoute = slices.Clone(t.DefaultRoute)

		if t.Kind == "" {
			t.Kind = KindWork
		}
		if t.Join == "" {
			t.Join = core.JoinAND
		}
		if t.Split == "" {
			t.Split = core.SplitAND
		}
		if t.Workflow != nil {
			ref := *t.Workflow
			t.Workflow = &ref
		}
		if t.CancelRegion != nil {
			cr := CancelRegion{
				Tasks:      slices.Clone(t.CancelRegion.Tasks),
				Conditions: slices.Clone(t.CancelRegion.Conditions),
			}
			t.CancelRegion = &cr
		}

		n.Tasks[i] = t
	}

	n.index()

	return n
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
