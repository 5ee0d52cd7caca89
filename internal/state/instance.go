package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
)

// Instance is the aggregate of a workflow instance: the instance itself plus all generations of its tasks,
// its conditions, and its work items. Engine operations load the aggregate, mutate it in memory, and save
// it back within one transaction.
type Instance struct {
	Workflow   *core.WorkflowInstance
	Tasks      []*core.TaskInstance
	Conditions []*core.ConditionInstance
	WorkItems  []*core.WorkItem

	// versions and saved hold the stored version and encoding of every record as last read or written
	versions map[string]int64
	saved    map[string][]byte
}

func newInstance(wi *core.WorkflowInstance) *Instance {
	return &Instance{
		Workflow: wi,
		versions: make(map[string]int64),
		saved:    make(map[string][]byte),
	}
}

// Load reads the aggregate of the given workflow instance.
func Load(ctx context.Context, tx backend.Tx, id string) (*Instance, error) {
	r, err := tx.Get(ctx, KindInstance, id)
	if err != nil {
		if errors.Is(err, backend.ErrRecordNotFound) {
			return nil, fmt.Errorf("workflow instance %s: %w", id, core.ErrNotFound)
		}

		return nil, fmt.Errorf("getting workflow instance %s: %w", id, err)
	}

	return loadFrom(ctx, tx, r)
}

func loadFrom(ctx context.Context, tx backend.Tx, r *backend.Record) (*Instance, error) {
	wi, err := decode[core.WorkflowInstance](r)
	if err != nil {
		return nil, err
	}

	inst := newInstance(wi)
	inst.track(r)

	q := backend.Query{Index: IndexInstance, Value: wi.ID}

	tasks, err := tx.Query(ctx, KindTask, q)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	for _, r := range tasks {
		t, err := decode[core.TaskInstance](r)
		if err != nil {
			return nil, err
		}
		inst.Tasks = append(inst.Tasks, t)
		inst.track(r)
	}

	conditions, err := tx.Query(ctx, KindCondition, q)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	for _, r := range conditions {
		c, err := decode[core.ConditionInstance](r)
		if err != nil {
			return nil, err
		}
		inst.Conditions = append(inst.Conditions, c)
		inst.track(r)
	}

	items, err := tx.Query(ctx, KindWorkItem, q)
	if err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	for _, r := range items {
		wi, err := decode[core.WorkItem](r)
		if err != nil {
			return nil, err
		}
		inst.WorkItems = append(inst.WorkItems, wi)
		inst.track(r)
	}

	return inst, nil
}

func (i *Instance) track(r *backend.Record) {
	key := recordKey(r.Kind, r.ID)
	i.versions[key] = r.Version
	i.saved[key] = r.Data
}

// Version returns the stored version of the instance record, 0 if it has not been saved yet.
func (i *Instance) Version() int64 {
	return i.versions[recordKey(KindInstance, i.Workflow.ID)]
}

// Task returns the latest generation of the named task.
func (i *Instance) Task(name string) *core.TaskInstance {
	var latest *core.TaskInstance
	for _, t := range i.Tasks {
		if t.Name == name && (latest == nil || t.Generation > latest.Generation) {
			latest = t
		}
	}

	return latest
}

// TaskGeneration returns the given generation of the named task.
func (i *Instance) TaskGeneration(name string, generation int) *core.TaskInstance {
	for _, t := range i.Tasks {
		if t.Name == name && t.Generation == generation {
			return t
		}
	}

	return nil
}

// TaskGenerations returns all generations of the named task, oldest first.
func (i *Instance) TaskGenerations(name string) []*core.TaskInstance {
	var r []*core.TaskInstance
	for _, t := range i.Tasks {
		if t.Name == name {
			r = append(r, t)
		}
	}

	return r
}

// ActiveTasks returns the enabled or started task generations in creation order.
func (i *Instance) ActiveTasks() []*core.TaskInstance {
	var r []*core.TaskInstance
	for _, t := range i.Tasks {
		if t.State.Active() {
			r = append(r, t)
		}
	}

	return r
}

func (i *Instance) Condition(name string) *core.ConditionInstance {
	for _, c := range i.Conditions {
		if c.Name == name {
			return c
		}
	}

	return nil
}

func (i *Instance) Marking(name string) int {
	if c := i.Condition(name); c != nil {
		return c.Marking
	}

	return 0
}

func (i *Instance) WorkItem(id string) *core.WorkItem {
	for _, wi := range i.WorkItems {
		if wi.ID == id {
			return wi
		}
	}

	return nil
}

// WorkItemsForTask returns the work items of all generations of the named task in creation order.
func (i *Instance) WorkItemsForTask(name string) []*core.WorkItem {
	var r []*core.WorkItem
	for _, wi := range i.WorkItems {
		if wi.TaskName == name {
			r = append(r, wi)
		}
	}

	return r
}

// WorkItemsForGeneration returns the work items bound to the given task generation.
func (i *Instance) WorkItemsForGeneration(name string, generation int) []*core.WorkItem {
	var r []*core.WorkItem
	for _, wi := range i.WorkItems {
		if wi.TaskName == name && wi.TaskGeneration == generation {
			r = append(r, wi)
		}
	}

	return r
}

// Save writes all records of the aggregate that changed since they were loaded or last saved. If anything
// changed, the instance record is always rewritten so that concurrent writers of the same aggregate
// conflict. It reports whether anything was written.
func (i *Instance) Save(ctx context.Context, tx backend.Tx) (bool, error) {
	type write struct {
		kind, id string
		data     []byte
	}

	var writes []write

	add := func(kind, id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", kind, id, err)
		}

		if saved, ok := i.saved[recordKey(kind, id)]; ok && bytes.Equal(saved, data) {
			return nil
		}

		writes = append(writes, write{kind, id, data})
		return nil
	}

	for _, t := range i.Tasks {
		if err := add(KindTask, t.ID(), t); err != nil {
			return false, err
		}
	}

	for _, c := range i.Conditions {
		if err := add(KindCondition, conditionID(c.WorkflowInstanceID, c.Name), c); err != nil {
			return false, err
		}
	}

	for _, wi := range i.WorkItems {
		if err := add(KindWorkItem, wi.ID, wi); err != nil {
			return false, err
		}
	}

	instData, err := json.Marshal(i.Workflow)
	if err != nil {
		return false, fmt.Errorf("encoding workflow instance %s: %w", i.Workflow.ID, err)
	}

	instKey := recordKey(KindInstance, i.Workflow.ID)
	if len(writes) == 0 && bytes.Equal(i.saved[instKey], instData) {
		return false, nil
	}

	writes = append(writes, write{KindInstance, i.Workflow.ID, instData})

	for _, w := range writes {
		key := recordKey(w.kind, w.id)

		indexes := map[string]string{IndexInstance: i.Workflow.ID}
		if w.kind == KindInstance {
			indexes = instanceIndexes(i.Workflow)
		}

		if err := tx.Put(ctx, &backend.Record{
			Kind:    w.kind,
			ID:      w.id,
			Version: i.versions[key],
			Data:    w.data,
			Indexes: indexes,
		}); err != nil {
			return false, fmt.Errorf("writing %s %s: %w", w.kind, w.id, err)
		}

		i.versions[key]++
		i.saved[key] = w.data
	}

	return true, nil
}

// Clone returns a deep copy of the aggregate as of its last load or save. Unsaved changes are not part of
// the copy.
func (i *Instance) Clone() (*Instance, error) {
	c := newInstance(nil)

	for key, v := range i.versions {
		c.versions[key] = v
	}
	for key, data := range i.saved {
		c.saved[key] = data
	}

	wi := new(core.WorkflowInstance)
	if err := json.Unmarshal(i.saved[recordKey(KindInstance, i.Workflow.ID)], wi); err != nil {
		return nil, fmt.Errorf("cloning workflow instance: %w", err)
	}
	c.Workflow = wi

	for _, t := range i.Tasks {
		data, ok := i.saved[recordKey(KindTask, t.ID())]
		if !ok {
			continue
		}

		ct := new(core.TaskInstance)
		if err := json.Unmarshal(data, ct); err != nil {
			return nil, fmt.Errorf("cloning task: %w", err)
		}
		c.Tasks = append(c.Tasks, ct)
	}

	for _, cond := range i.Conditions {
		data, ok := i.saved[recordKey(KindCondition, conditionID(cond.WorkflowInstanceID, cond.Name))]
		if !ok {
			continue
		}

		cc := new(core.ConditionInstance)
		if err := json.Unmarshal(data, cc); err != nil {
			return nil, fmt.Errorf("cloning condition: %w", err)
		}
		c.Conditions = append(c.Conditions, cc)
	}

	for _, item := range i.WorkItems {
		data, ok := i.saved[recordKey(KindWorkItem, item.ID)]
		if !ok {
			continue
		}

		ci := new(core.WorkItem)
		if err := json.Unmarshal(data, ci); err != nil {
			return nil, fmt.Errorf("cloning work item: %w", err)
		}
		c.WorkItems = append(c.WorkItems, ci)
	}

	return c, nil
}
