package registry

import (
	"fmt"
	"sync"

	"github.com/cschleiden/go-wfnet/definition"
)

// Resolver looks up registered workflow definitions.
type Resolver interface {
	// Resolve returns the definition registered for name and version. An empty version resolves to the
	// latest registered version.
	Resolve(name, version string) (*definition.WorkflowVersion, error)
}

// Registry holds the workflow definitions known to an engine. Definitions are immutable once registered:
// changing behavior requires registering a new version, instances keep executing the version they were
// started with.
type Registry struct {
	sync.Mutex

	versions map[string]map[string]*definition.WorkflowVersion

	// latest holds the most recently registered version per workflow name
	latest map[string]string
}

var _ Resolver = (*Registry)(nil)

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		versions: make(map[string]map[string]*definition.WorkflowVersion),
		latest:   make(map[string]string),
	}
}

// Register validates and stores the given definition.
func (r *Registry) Register(v *definition.WorkflowVersion) error {
	if v == nil {
		return &ErrInvalidWorkflow{msg: "workflow definition is nil"}
	}

	if err := v.Validate(); err != nil {
		return &ErrInvalidWorkflow{msg: err.Error(), err: err}
	}

	n := v.Normalized()

	r.Lock()
	defer r.Unlock()

	versions, ok := r.versions[n.Name]
	if !ok {
		versions = make(map[string]*definition.WorkflowVersion)
		r.versions[n.Name] = versions
	}

	if _, ok := versions[n.Version]; ok {
		return &ErrVersionAlreadyRegistered{fmt.Sprintf("workflow %q version %q already registered", n.Name, n.Version)}
	}

	versions[n.Version] = n
	r.latest[n.Name] = n.Version

	return nil
}

func (r *Registry) Resolve(name, version string) (*definition.WorkflowVersion, error) {
	if version == "" {
		return r.Latest(name)
	}

	r.Lock()
	defer r.Unlock()

	if v, ok := r.versions[name][version]; ok {
		return v, nil
	}

	return nil, &ErrWorkflowNotFound{fmt.Sprintf("workflow %q version %q not found", name, version)}
}

// Latest returns the most recently registered version of the named workflow.
func (r *Registry) Latest(name string) (*definition.WorkflowVersion, error) {
	r.Lock()
	defer r.Unlock()

	if version, ok := r.latest[name]; ok {
		return r.versions[name][version], nil
	}

	return nil, &ErrWorkflowNotFound{fmt.Sprintf("workflow %q not found", name)}
}

// Workflows returns all registered definitions.
func (r *Registry) Workflows() []*definition.WorkflowVersion {
	r.Lock()
	defer r.Unlock()

	var all []*definition.WorkflowVersion
	for _, versions := range r.versions {
		for _, v := range versions {
			all = append(all, v)
		}
	}

	return all
}
