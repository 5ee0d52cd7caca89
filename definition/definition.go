package definition

import (
	"github.com/cschleiden/go-wfnet/core"
)

// Kind determines how the engine executes a task.
type Kind string

const (
	// KindWork tasks are executed by external actors through work items.
	KindWork Kind = "work"

	// KindComposite tasks execute a sub-workflow.
	KindComposite Kind = "composite"

	// KindDummy tasks only route tokens and complete as soon as they are enabled.
	KindDummy Kind = "dummy"
)

// Ref references a registered workflow version. An empty version resolves to the latest registered
// version at the time the reference is resolved.
type Ref struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

type Condition struct {
	Name string `yaml:"name" json:"name" validate:"required"`
}

// CancelRegion lists the tasks and conditions that are cleared when the owning task completes.
type CancelRegion struct {
	Tasks      []string `yaml:"tasks,omitempty" json:"tasks,omitempty" validate:"dive,required"`
	Conditions []string `yaml:"conditions,omitempty" json:"conditions,omitempty" validate:"dive,required"`
}

type Task struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind Kind   `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=work composite dummy"`

	Join  core.JoinType  `yaml:"join,omitempty" json:"join,omitempty" validate:"omitempty,oneof=AND XOR OR"`
	Split core.SplitType `yaml:"split,omitempty" json:"split,omitempty" validate:"omitempty,oneof=AND XOR OR"`

	Inputs  []string `yaml:"inputs" json:"inputs" validate:"min=1,dive,required"`
	Outputs []string `yaml:"outputs" json:"outputs" validate:"min=1,dive,required"`

	// Workflow is the sub-workflow executed by composite tasks.
	Workflow *Ref `yaml:"workflow,omitempty" json:"workflow,omitempty"`

	// DefaultRoute is used for automatic completions of dummy and composite tasks when no router
	// provides a decision.
	DefaultRoute []string `yaml:"default_route,omitempty" json:"default_route,omitempty" validate:"dive,required"`

	// AutoWorkItem initializes a work item whenever the task is enabled.
	AutoWorkItem bool `yaml:"auto_work_item,omitempty" json:"auto_work_item,omitempty"`

	CancelRegion *CancelRegion `yaml:"cancel_region,omitempty" json:"cancel_region,omitempty"`
}

// WorkflowVersion is the immutable description of a workflow net. Tasks and conditions are connected by
// name: a task consumes from its Inputs and produces into its Outputs.
type WorkflowVersion struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Version string `yaml:"version" json:"version" validate:"required"`

	StartCondition string `yaml:"start" json:"start" validate:"required"`
	EndCondition   string `yaml:"end" json:"end" validate:"required"`

	Conditions []Condition `yaml:"conditions" json:"conditions" validate:"min=2,dive"`
	Tasks      []Task      `yaml:"tasks" json:"tasks" validate:"min=1,dive"`

	tasks      map[string]int
	conditions map[string]int
	consumers  map[string][]string
}

func (v *WorkflowVersion) Ref() Ref {
	return Ref{Name: v.Name, Version: v.Version}
}

// Task returns the task with the given name.
func (v *WorkflowVersion) Task(name string) (*Task, bool) {
	v.index()

	i, ok := v.tasks[name]
	if !ok {
		return nil, false
	}

	return &v.Tasks[i], true
}

func (v *WorkflowVersion) HasCondition(name string) bool {
	v.index()

	_, ok := v.conditions[name]
	return ok
}

// Consumers returns the names of the tasks that have the given condition as input, in declaration order.
func (v *WorkflowVersion) Consumers(condition string) []string {
	v.index()

	return v.consumers[condition]
}

func (v *WorkflowVersion) index() {
	if v.tasks != nil {
		return
	}

	v.tasks = make(map[string]int, len(v.Tasks))
	v.conditions = make(map[string]int, len(v.Conditions))
	v.consumers = make(map[string][]string)

	for i, c := range v.Conditions {
		v.conditions[c.Name] = i
	}

	for i, t := range v.Tasks {
		v.tasks[t.Name] = i
		for _, in := range t.Inputs {
			v.consumers[in] = append(v.consumers[in], t.Name)
		}
	}
}
