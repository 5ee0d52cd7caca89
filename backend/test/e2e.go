package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

type engineTest struct {
	name string
	f    func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend)
}

// EndToEndBackendTest runs workflow nets through the engine on top of the given backend.
func EndToEndBackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []engineTest{
		{
			name: "ANDJoinANDSplit",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "parallel", "")
				require.NoError(t, err)

				requireTaskState(t, ctx, e, id, "fork", core.TaskStateCompleted)
				requireTaskState(t, ctx, e, id, "a", core.TaskStateEnabled)
				requireTaskState(t, ctx, e, id, "b", core.TaskStateEnabled)

				work(t, ctx, e, id, "a")

				requireMarking(t, ctx, e, id, "A", 1)
				requireTaskState(t, ctx, e, id, "join", core.TaskStateDisabled)

				work(t, ctx, e, id, "b")

				requireMarking(t, ctx, e, id, "A", 0)
				requireMarking(t, ctx, e, id, "B", 0)
				requireTaskState(t, ctx, e, id, "join", core.TaskStateEnabled)

				work(t, ctx, e, id, "join")

				requireMarking(t, ctx, e, id, "C", 1)
				requireMarking(t, ctx, e, id, "D", 1)
				requireTaskState(t, ctx, e, id, "join", core.TaskStateCompleted)
			},
		},
		{
			name: "XORSplitRequiresDecision",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "document", "")
				require.NoError(t, err)

				work(t, ctx, e, id, "draft")

				wiID := startWork(t, ctx, e, id, "review")

				err = e.CompleteWorkItem(ctx, wiID, nil)
				require.ErrorIs(t, err, core.ErrRoutingDecisionRequired)

				err = e.CompleteWorkItem(ctx, wiID, nil, engine.WithRoute("end", "revised"))
				require.ErrorIs(t, err, core.ErrInvalidSplitSelection)

				wi, err := e.GetWorkItem(ctx, wiID)
				require.NoError(t, err)
				require.Equal(t, core.WorkItemStateStarted, wi.State)

				require.NoError(t, e.CompleteWorkItem(ctx, wiID, nil, engine.WithRoute("end")))

				requireMarking(t, ctx, e, id, "revised", 0)

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateCompleted, wf.State)
			},
		},
		{
			name: "ReviseLoopCreatesNewGeneration",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "document", "")
				require.NoError(t, err)

				first := work(t, ctx, e, id, "draft")
				work(t, ctx, e, id, "review", engine.WithRoute("revised"))

				tis, err := e.GetTaskInstances(ctx, id, "draft")
				require.NoError(t, err)
				require.Len(t, tis, 2)
				require.Equal(t, core.TaskStateCompleted, tis[0].State)
				require.Equal(t, core.TaskStateEnabled, tis[1].State)
				require.Equal(t, 2, tis[1].Generation)

				current, err := e.CurrentWorkItem(ctx, id, "draft")
				require.NoError(t, err)
				require.Equal(t, first, current.ID)

				second, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{ParentWorkflowInstanceID: id, ParentTaskName: "draft"}, map[string]string{"rev": "2"})
				require.NoError(t, err)

				current, err = e.CurrentWorkItem(ctx, id, "draft")
				require.NoError(t, err)
				require.Equal(t, second, current.ID)
				require.Equal(t, 2, current.TaskGeneration)
				require.JSONEq(t, `{"rev":"2"}`, string(current.Payload))

				items, err := e.GetWorkItemsForTask(ctx, id, "draft")
				require.NoError(t, err)
				require.Len(t, items, 2)
				require.Equal(t, second, items[0].ID)
			},
		},
		{
			name: "WorkItemForDisabledTask",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "document", "")
				require.NoError(t, err)

				_, err = e.InitializeWorkItem(ctx, engine.WorkItemTarget{ParentWorkflowInstanceID: id, ParentTaskName: "review"}, nil)
				require.ErrorIs(t, err, core.ErrTaskNotEnabled)

				_, err = e.InitializeWorkItem(ctx, engine.WorkItemTarget{ParentWorkflowInstanceID: id, ParentTaskName: "missing"}, nil)
				require.ErrorIs(t, err, core.ErrNotFound)
			},
		},
		{
			name: "UnknownWorkflow",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				_, err := e.InitializeWorkflow(ctx, "unknown", "")
				require.ErrorIs(t, err, core.ErrNotFound)

				_, err = e.GetWorkflowInstance(ctx, "unknown")
				require.ErrorIs(t, err, core.ErrNotFound)
			},
		},
		{
			name: "CompositePropagatesCompletion",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "order", "", engine.WithAggregateKey("order-42"))
				require.NoError(t, err)

				children, err := e.GetChildWorkflowInstances(ctx, id, "approval")
				require.NoError(t, err)
				require.Len(t, children, 1)
				require.Equal(t, core.WorkflowStateStarted, children[0].State)
				require.Equal(t, "order-42", children[0].AggregateKey)

				wiID, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{
					Path:                     []string{"approval"},
					ParentWorkflowInstanceID: id,
					ParentTaskName:           "approve",
				}, nil)
				require.NoError(t, err)

				current, err := e.CurrentWorkItemByAggregate(ctx, "order-42", "approve")
				require.NoError(t, err)
				require.Equal(t, wiID, current.ID)

				require.NoError(t, e.StartWorkItem(ctx, wiID))
				require.NoError(t, e.CompleteWorkItem(ctx, wiID, map[string]bool{"approved": true}))

				child, err := e.GetWorkflowInstance(ctx, children[0].ID)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateCompleted, child.State)

				tis, err := e.GetTaskInstances(ctx, id, "approval")
				require.NoError(t, err)
				require.Len(t, tis, 1)
				require.Equal(t, core.TaskStateCompleted, tis[0].State)
				require.Equal(t, child.ID, tis[0].ChildWorkflowInstanceID)

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateCompleted, wf.State)

				spans, err := e.GetSpans(ctx, wf.TraceID)
				require.NoError(t, err)

				completions := 0
				for _, s := range spans {
					if s.Operation == "task.complete" && s.ResourceName == "approval" {
						completions++
					}
				}
				require.Equal(t, 1, completions)
			},
		},
		{
			name: "CompositePropagatesFailure",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "order", "")
				require.NoError(t, err)

				wiID, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{
					Path:                     []string{"approval"},
					ParentWorkflowInstanceID: id,
					ParentTaskName:           "approve",
				}, nil)
				require.NoError(t, err)

				require.NoError(t, e.StartWorkItem(ctx, wiID))
				require.NoError(t, e.FailWorkItem(ctx, wiID, errors.New("rejected by reviewer")))

				wi, err := e.GetWorkItem(ctx, wiID)
				require.NoError(t, err)
				require.Equal(t, core.WorkItemStateFailed, wi.State)
				require.Equal(t, "rejected by reviewer", wi.Failure.Message)

				child, err := e.GetWorkflowInstance(ctx, wi.WorkflowInstanceID)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateFailed, child.State)

				requireTaskState(t, ctx, e, id, "approval", core.TaskStateFailed)

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateFailed, wf.State)
				require.NotNil(t, wf.Failure)
			},
		},
		{
			name: "CancelWorkflowCascades",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "order", "")
				require.NoError(t, err)

				wiID, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{
					Path:                     []string{"approval"},
					ParentWorkflowInstanceID: id,
					ParentTaskName:           "approve",
				}, nil)
				require.NoError(t, err)

				require.NoError(t, e.CancelWorkflow(ctx, id))

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateCanceled, wf.State)
				requireTaskState(t, ctx, e, id, "approval", core.TaskStateCanceled)

				wi, err := e.GetWorkItem(ctx, wiID)
				require.NoError(t, err)
				require.Equal(t, core.WorkItemStateCanceled, wi.State)

				child, err := e.GetWorkflowInstance(ctx, wi.WorkflowInstanceID)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowStateCanceled, child.State)

				err = e.CancelWorkflow(ctx, id)
				require.ErrorIs(t, err, core.ErrInvalidTransition)
			},
		},
		{
			name: "SchedulerTickIsIdempotent",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "order", "")
				require.NoError(t, err)

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)

				before, err := e.GetSpans(ctx, wf.TraceID)
				require.NoError(t, err)

				for range 2 {
					r, err := e.RunSchedulerTick(ctx)
					require.NoError(t, err)
					require.True(t, r.Settled)
					require.Zero(t, r.Processed)
				}

				after, err := e.GetSpans(ctx, wf.TraceID)
				require.NoError(t, err)
				require.Len(t, after, len(before))
			},
		},
		{
			name: "StateAtReplaysTrace",
			f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
				id, err := e.InitializeWorkflow(ctx, "parallel", "")
				require.NoError(t, err)

				work(t, ctx, e, id, "a")

				wf, err := e.GetWorkflowInstance(ctx, id)
				require.NoError(t, err)

				trace, err := e.GetTrace(ctx, wf.TraceID)
				require.NoError(t, err)
				require.Equal(t, id, trace.RootWorkflowInstanceID)
				// initialize workflow, then initialize, start, and complete the work item
				require.Equal(t, 4, trace.EventCount)

				s, err := e.StateAt(ctx, wf.TraceID, time.Now().Add(time.Hour))
				require.NoError(t, err)
				require.Equal(t, 1, s.Marking(id, "A"))
				require.Equal(t, 0, s.Marking(id, "B"))
				require.Equal(t, string(core.TaskStateCompleted), s.LatestTask(id, "a").State)

				_, err = e.GetTrace(ctx, audit.NewTraceID())
				require.ErrorIs(t, err, core.ErrNotFound)
			},
		},
	}

	tests = append(tests, e2eTracingTests...)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()

			r := registry.New()
			for _, def := range nets() {
				require.NoError(t, r.Register(def))
			}

			var opts []engine.Option
			if o, ok := b.(interface{ EngineOptions() []engine.Option }); ok {
				opts = o.EngineOptions()
			}

			tt.f(t, ctx, engine.New(b, r, opts...), b)

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func nets() []*definition.WorkflowVersion {
	return []*definition.WorkflowVersion{
		definition.New("parallel", "v1").
			Condition("start", "s1", "s2", "A", "B", "C", "D", "end").
			Task("fork", definition.From("start"), definition.To("s1", "s2"), definition.Dummy()).
			Task("a", definition.From("s1"), definition.To("A")).
			Task("b", definition.From("s2"), definition.To("B")).
			Task("join", definition.From("A", "B"), definition.To("C", "D")).
			MustBuild(),

		definition.New("document", "v1").
			Condition("start", "drafted", "revised", "end").
			Task("draft", definition.From("start", "revised"), definition.Join(core.JoinXOR), definition.To("drafted")).
			Task("review", definition.From("drafted"), definition.To("end", "revised"), definition.Split(core.SplitXOR)).
			MustBuild(),

		definition.New("approval", "v1").
			Condition("start", "end").
			Task("approve", definition.From("start"), definition.To("end")).
			MustBuild(),

		definition.New("order", "v1").
			Condition("start", "approved", "end").
			Task("approval", definition.From("start"), definition.To("approved"), definition.Composite("approval", "")).
			Task("ship", definition.From("approved"), definition.To("end"), definition.Dummy()).
			MustBuild(),
	}
}

func requireTaskState(t *testing.T, ctx context.Context, e *engine.Engine, id, task string, expected core.TaskState) {
	t.Helper()

	s, err := e.GetTaskState(ctx, id, task)
	require.NoError(t, err)
	require.Equal(t, expected, s, "state of task %q", task)
}

func requireMarking(t *testing.T, ctx context.Context, e *engine.Engine, id, condition string, expected int) {
	t.Helper()

	m, err := e.GetConditionMarking(ctx, id, condition)
	require.NoError(t, err)
	require.Equal(t, expected, m, "marking of condition %q", condition)
}

// startWork initializes and starts a work item for the task and returns its id.
func startWork(t *testing.T, ctx context.Context, e *engine.Engine, id, task string) string {
	t.Helper()

	wiID, err := e.InitializeWorkItem(ctx, engine.WorkItemTarget{ParentWorkflowInstanceID: id, ParentTaskName: task}, nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkItem(ctx, wiID))

	return wiID
}

// work runs a work item of the task from initialization to completion and returns its id.
func work(t *testing.T, ctx context.Context, e *engine.Engine, id, task string, opts ...engine.CompleteOption) string {
	t.Helper()

	wiID := startWork(t, ctx, e, id, task)
	require.NoError(t, e.CompleteWorkItem(ctx, wiID, nil, opts...))

	return wiID
}
