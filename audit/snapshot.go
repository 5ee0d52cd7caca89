package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

type WorkflowSnapshot struct {
	ID                       string `json:"id"`
	Name                     string `json:"name,omitempty"`
	Version                  string `json:"version,omitempty"`
	ParentWorkflowInstanceID string `json:"parent_workflow_instance_id,omitempty"`
	State                    string `json:"state"`
}

type TaskSnapshot struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Name               string `json:"name"`
	Generation         int    `json:"generation"`
	State              string `json:"state"`
}

type ConditionSnapshot struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Name               string `json:"name"`
	Marking            int    `json:"marking"`
}

type WorkItemSnapshot struct {
	ID                 string `json:"id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	TaskName           string `json:"task_name"`
	TaskGeneration     int    `json:"task_generation"`
	State              string `json:"state"`
}

// Snapshot is the state of a workflow tree reconstructed from its spans. Maps are keyed by the resource id
// of the spans that produced the entries.
type Snapshot struct {
	At time.Time `json:"at"`

	Workflows  map[string]*WorkflowSnapshot  `json:"workflows"`
	Tasks      map[string]*TaskSnapshot      `json:"tasks"`
	Conditions map[string]*ConditionSnapshot `json:"conditions"`
	WorkItems  map[string]*WorkItemSnapshot  `json:"work_items"`
}

// Task returns the snapshot of the given task generation.
func (s *Snapshot) Task(workflowInstanceID, name string, generation int) *TaskSnapshot {
	return s.Tasks[fmt.Sprintf("%s/%s/%d", workflowInstanceID, name, generation)]
}

// LatestTask returns the snapshot of the newest known generation of the task.
func (s *Snapshot) LatestTask(workflowInstanceID, name string) *TaskSnapshot {
	var latest *TaskSnapshot
	for _, t := range s.Tasks {
		if t.WorkflowInstanceID == workflowInstanceID && t.Name == name && (latest == nil || t.Generation > latest.Generation) {
			latest = t
		}
	}

	return latest
}

func (s *Snapshot) Marking(workflowInstanceID, condition string) int {
	if c, ok := s.Conditions[workflowInstanceID+"/"+condition]; ok {
		return c.Marking
	}

	return 0
}

// WorkItemsForTask returns the work items of the task ordered by id.
func (s *Snapshot) WorkItemsForTask(workflowInstanceID, name string) []*WorkItemSnapshot {
	var r []*WorkItemSnapshot
	for _, wi := range s.WorkItems {
		if wi.WorkflowInstanceID == workflowInstanceID && wi.TaskName == name {
			r = append(r, wi)
		}
	}

	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })

	return r
}

// StateAt replays all spans that started at or before t.
func StateAt(spans []*Span, t time.Time) *Snapshot {
	s := &Snapshot{
		At:         t,
		Workflows:  make(map[string]*WorkflowSnapshot),
		Tasks:      make(map[string]*TaskSnapshot),
		Conditions: make(map[string]*ConditionSnapshot),
		WorkItems:  make(map[string]*WorkItemSnapshot),
	}

	for _, span := range spans {
		if span.StartedAt.After(t) {
			continue
		}

		s.apply(span)
	}

	return s
}

func (s *Snapshot) apply(span *Span) {
	if span.OperationType != OperationTransition {
		return
	}

	switch span.ResourceType {
	case ResourceWorkflow:
		wf, ok := s.Workflows[span.ResourceID]
		if !ok {
			wf = &WorkflowSnapshot{ID: span.ResourceID}
			s.Workflows[span.ResourceID] = wf
		}

		if name := stringAttr(span.Attributes, AttrWorkflowName); name != "" {
			wf.Name = name
			wf.Version = stringAttr(span.Attributes, AttrVersion)
			wf.ParentWorkflowInstanceID = stringAttr(span.Attributes, AttrParentInstance)
		}

		if state := stringAttr(span.Attributes, AttrStateNew); state != "" {
			wf.State = state
		}

		for _, name := range stringsAttr(span.Attributes, AttrTasks) {
			t := &TaskSnapshot{WorkflowInstanceID: span.ResourceID, Name: name, Generation: 1, State: "disabled"}
			s.Tasks[fmt.Sprintf("%s/%s/%d", span.ResourceID, name, 1)] = t
		}

		for _, name := range stringsAttr(span.Attributes, AttrConditions) {
			s.Conditions[span.ResourceID+"/"+name] = &ConditionSnapshot{WorkflowInstanceID: span.ResourceID, Name: name}
		}

	case ResourceTask:
		t, ok := s.Tasks[span.ResourceID]
		if !ok {
			t = &TaskSnapshot{
				WorkflowInstanceID: span.WorkflowInstanceID,
				Name:               span.ResourceName,
				Generation:         intAttr(span.Attributes, AttrGeneration),
			}
			s.Tasks[span.ResourceID] = t
		}

		if state := stringAttr(span.Attributes, AttrStateNew); state != "" {
			t.State = state
		}

	case ResourceCondition:
		c, ok := s.Conditions[span.ResourceID]
		if !ok {
			c = &ConditionSnapshot{WorkflowInstanceID: span.WorkflowInstanceID, Name: span.ResourceName}
			s.Conditions[span.ResourceID] = c
		}

		c.Marking = intAttr(span.Attributes, AttrMarkingNew)

	case ResourceWorkItem:
		wi, ok := s.WorkItems[span.ResourceID]
		if !ok {
			wi = &WorkItemSnapshot{
				ID:                 span.ResourceID,
				WorkflowInstanceID: span.WorkflowInstanceID,
				TaskName:           stringAttr(span.Attributes, AttrTaskName),
				TaskGeneration:     intAttr(span.Attributes, AttrGeneration),
			}
			s.WorkItems[span.ResourceID] = wi
		}

		if state := stringAttr(span.Attributes, AttrStateNew); state != "" {
			wi.State = state
		}
	}
}

func stringAttr(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	}

	if rv := reflect.ValueOf(attrs[key]); rv.Kind() == reflect.String {
		return rv.String()
	}

	return ""
}

func stringsAttr(attrs map[string]any, key string) []string {
	switch v := attrs[key].(type) {
	case []string:
		return v
	case []any:
		r := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				r = append(r, s)
			}
		}
		return r
	}

	return nil
}

func intAttr(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	}

	return 0
}
