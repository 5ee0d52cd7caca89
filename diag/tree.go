package diag

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-wfnet/core"
)

// maxTreeDepth bounds the nesting of composite tasks followed when building a tree.
const maxTreeDepth = 64

// buildInstanceTree returns the tree of workflow instances the given instance belongs to, starting at the
// root of its execution tree.
func buildInstanceTree(ctx context.Context, e Engine, instanceID string) (*WorkflowInstanceTree, error) {
	wf, err := e.GetWorkflowInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("getting instance: %w", err)
	}

	for depth := 0; wf.Parent != nil; depth++ {
		if depth >= maxTreeDepth {
			return nil, fmt.Errorf("instance %s is nested deeper than %d levels", instanceID, maxTreeDepth)
		}

		wf, err = e.GetWorkflowInstance(ctx, wf.Parent.WorkflowInstanceID)
		if err != nil {
			return nil, fmt.Errorf("getting parent instance: %w", err)
		}
	}

	return expand(ctx, e, wf, 0)
}

func expand(ctx context.Context, e Engine, wf *core.WorkflowInstance, depth int) (*WorkflowInstanceTree, error) {
	node := &WorkflowInstanceTree{
		Instance: wf,
		Children: []*WorkflowInstanceTree{},
	}

	if depth >= maxTreeDepth {
		return node, nil
	}

	children, err := e.GetChildWorkflowInstances(ctx, wf.ID, "")
	if err != nil {
		return nil, fmt.Errorf("getting children of instance %s: %w", wf.ID, err)
	}

	for _, c := range children {
		child, err := expand(ctx, e, c, depth+1)
		if err != nil {
			return nil, err
		}

		node.Children = append(node.Children, child)
	}

	return node, nil
}
