package routing

import (
	"slices"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/internal/state"
)

// Current returns the work item of the task that decides what happens next: the most recently created one,
// regardless of the generation it belongs to. Items created at the same instant are ordered by their
// sequence. It returns nil if the task has no work items.
func Current(inst *state.Instance, taskName string) *core.WorkItem {
	return Latest(inst.WorkItemsForTask(taskName))
}

// Latest returns the most recently created work item.
func Latest(items []*core.WorkItem) *core.WorkItem {
	if len(items) == 0 {
		return nil
	}

	return slices.MaxFunc(items, compare)
}

// Sort orders work items newest first.
func Sort(items []*core.WorkItem) {
	slices.SortStableFunc(items, func(a, b *core.WorkItem) int {
		return compare(b, a)
	})
}

// LastRoute returns the routing decision of the most recently completed work item among items, nil if none
// of them completed with a decision.
func LastRoute(items []*core.WorkItem) []string {
	var last *core.WorkItem
	for _, wi := range items {
		if wi.State != core.WorkItemStateCompleted || len(wi.Route) == 0 {
			continue
		}

		if last == nil || !wi.UpdatedAt.Before(last.UpdatedAt) {
			last = wi
		}
	}

	if last == nil {
		return nil
	}

	return last.Route
}

func compare(a, b *core.WorkItem) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}

	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}

	return 0
}
