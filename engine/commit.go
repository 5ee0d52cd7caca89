package engine

import (
	"context"
	"slices"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/events"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/metrics"
)

// committed runs after every committed unit: it refreshes the instance cache, exports the recorded spans,
// and publishes events. Failures are logged, the transaction already happened.
func (e *Engine) committed(ctx context.Context, u *state.Unit) {
	if e.cache != nil {
		for _, inst := range u.Instances() {
			if err := e.cache.Put(inst); err != nil {
				e.logger.Error("caching workflow instance", log.InstanceIDKey, inst.Workflow.ID, "error", err)
			}
		}
	}

	spans := u.Recorder.Spans()

	audit.Export(ctx, e.tracer, spans)
	e.recordMetrics(spans)

	pending := u.Pending()
	if len(pending) > 0 {
		e.metrics.Counter(metrickeys.PendingWorkEnqueued, metrics.Tags{}, int64(len(pending)))
	}

	if e.options.Publisher == nil {
		return
	}

	if err := e.options.Publisher.PublishSpans(ctx, spans); err != nil {
		e.logger.Error("publishing spans", "error", err)
	}

	for traceID, ids := range pendingByTrace(pending) {
		if err := e.options.Publisher.PublishPending(ctx, events.PendingNotification{
			TraceID:             traceID,
			WorkflowInstanceIDs: ids,
		}); err != nil {
			e.logger.Error("publishing pending work notification", log.TraceIDKey, traceID, "error", err)
		}
	}
}

func (e *Engine) recordMetrics(spans []*audit.Span) {
	for _, s := range spans {
		if s.OperationType != audit.OperationTransition {
			continue
		}

		newState, _ := s.Attributes[audit.AttrStateNew].(string)

		switch s.ResourceType {
		case audit.ResourceWorkflow:
			switch s.Operation {
			case "workflow.create":
				_, sub := s.Attributes[audit.AttrParentInstance]
				e.metrics.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{metrickeys.SubWorkflow: boolTag(sub)}, 1)
			case "workflow.complete", "workflow.fail", "workflow.cancel":
				e.metrics.Counter(metrickeys.WorkflowInstanceFinished, metrics.Tags{metrickeys.State: newState}, 1)
			}

		case audit.ResourceTask:
			switch s.Operation {
			case "task.enable":
				e.metrics.Counter(metrickeys.TaskEnabled, metrics.Tags{}, 1)
			case "task.complete", "task.fail", "task.cancel":
				e.metrics.Counter(metrickeys.TaskFinished, metrics.Tags{metrickeys.State: newState}, 1)
			}

		case audit.ResourceWorkItem:
			e.metrics.Counter(metrickeys.WorkItemTransition, metrics.Tags{metrickeys.State: newState}, 1)
		}
	}
}

func pendingByTrace(pending []*state.PendingWork) map[string][]string {
	r := make(map[string][]string)
	for _, p := range pending {
		if !slices.Contains(r[p.TraceID()], p.WorkflowInstanceID) {
			r[p.TraceID()] = append(r[p.TraceID()], p.WorkflowInstanceID)
		}
	}

	return r
}

func boolTag(b bool) string {
	if b {
		return "true"
	}

	return "false"
}
