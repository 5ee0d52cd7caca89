package definition

import (
	"slices"

	"github.com/cschleiden/go-wfnet/core"
)

// Builder constructs workflow definitions in code.
//
//	v, err := definition.New("order", "v1").
//		Condition("start", "end").
//		Task("ship", definition.From("start"), definition.To("end")).
//		Build()
type Builder struct {
	v WorkflowVersion
}

// New starts a definition whose start and end conditions are named "start" and "end" unless changed
// with StartAt and EndAt. Build declares the start and end conditions if Condition did not.
func New(name, version string) *Builder {
	return &Builder{
		v: WorkflowVersion{
			Name:           name,
			Version:        version,
			StartCondition: "start",
			EndCondition:   "end",
		},
	}
}

func (b *Builder) StartAt(condition string) *Builder {
	b.v.StartCondition = condition
	return b
}

func (b *Builder) EndAt(condition string) *Builder {
	b.v.EndCondition = condition
	return b
}

func (b *Builder) Condition(names ...string) *Builder {
	for _, name := range names {
		b.v.Conditions = append(b.v.Conditions, Condition{Name: name})
	}

	return b
}

func (b *Builder) Task(name string, opts ...TaskOption) *Builder {
	t := Task{Name: name}
	for _, opt := range opts {
		opt(&t)
	}

	b.v.Tasks = append(b.v.Tasks, t)

	return b
}

// Build validates the definition and returns its normalized form.
func (b *Builder) Build() (*WorkflowVersion, error) {
	v := b.v
	v.Conditions = slices.Clone(b.v.Conditions)

	if v.StartCondition != "" && !declared(v.Conditions, v.StartCondition) {
		v.Conditions = slices.Insert(v.Conditions, 0, Condition{Name: v.StartCondition})
	}

	if v.EndCondition != "" && !declared(v.Conditions, v.EndCondition) {
		v.Conditions = append(v.Conditions, Condition{Name: v.EndCondition})
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	return v.Normalized(), nil
}

func declared(conditions []Condition, name string) bool {
	return slices.ContainsFunc(conditions, func(c Condition) bool {
		return c.Name == name
	})
}

// MustBuild is like Build but panics on invalid definitions.
func (b *Builder) MustBuild() *WorkflowVersion {
	v, err := b.Build()
	if err != nil {
		panic(err)
	}

	return v
}

type TaskOption func(*Task)

func From(conditions ...string) TaskOption {
	return func(t *Task) {
		t.Inputs = append(t.Inputs, conditions...)
	}
}

func To(conditions ...string) TaskOption {
	return func(t *Task) {
		t.Outputs = append(t.Outputs, conditions...)
	}
}

func Join(j core.JoinType) TaskOption {
	return func(t *Task) {
		t.Join = j
	}
}

func Split(s core.SplitType) TaskOption {
	return func(t *Task) {
		t.Split = s
	}
}

// Dummy marks the task as routing-only.
func Dummy() TaskOption {
	return func(t *Task) {
		t.Kind = KindDummy
	}
}

// Composite makes the task execute the given workflow as a sub-workflow. An empty version resolves to the
// latest registered version.
func Composite(name, version string) TaskOption {
	return func(t *Task) {
		t.Kind = KindComposite
		t.Workflow = &Ref{Name: name, Version: version}
	}
}

func DefaultRoute(outputs ...string) TaskOption {
	return func(t *Task) {
		t.DefaultRoute = outputs
	}
}

func AutoWorkItem() TaskOption {
	return func(t *Task) {
		t.AutoWorkItem = true
	}
}

// Cancels clears the given tasks and conditions when the task completes.
func Cancels(tasks []string, conditions []string) TaskOption {
	return func(t *Task) {
		t.CancelRegion = &CancelRegion{Tasks: tasks, Conditions: conditions}
	}
}
