package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/engine"
)

func setupTracing(b backend.Backend) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	processor := trace.NewSimpleSpanProcessor(exporter)
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(processor))
	b.Options().TracerProvider = provider

	return exporter
}

var e2eTracingTests = []engineTest{
	{
		name: "Tracing/SpansAreExported",
		f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
			exporter := setupTracing(b)
			e = engine.New(b, e.Registry())

			id, err := e.InitializeWorkflow(ctx, "parallel", "")
			require.NoError(t, err)

			wf, err := e.GetWorkflowInstance(ctx, id)
			require.NoError(t, err)

			stored, err := e.GetSpans(ctx, wf.TraceID)
			require.NoError(t, err)

			exported := exporter.GetSpans().Snapshots()
			require.Len(t, exported, len(stored))

			root := findSpan(exported, func(span trace.ReadOnlySpan) bool {
				return span.Name() == "engine.initialize_workflow"
			})
			require.NotNil(t, root)
			require.Equal(t, wf.TraceID, root.SpanContext().TraceID().String())

			create := findSpan(exported, func(span trace.ReadOnlySpan) bool {
				return span.Name() == "workflow.create"
			})
			require.NotNil(t, create)
			require.Equal(t, root.SpanContext().SpanID().String(), create.Parent().SpanID().String())
		},
	},
	{
		name: "Tracing/SubWorkflowsShareTrace",
		f: func(t *testing.T, ctx context.Context, e *engine.Engine, b backend.Backend) {
			exporter := setupTracing(b)
			e = engine.New(b, e.Registry())

			id, err := e.InitializeWorkflow(ctx, "order", "")
			require.NoError(t, err)

			wf, err := e.GetWorkflowInstance(ctx, id)
			require.NoError(t, err)

			children, err := e.GetChildWorkflowInstances(ctx, id, "")
			require.NoError(t, err)
			require.Len(t, children, 1)
			require.Equal(t, wf.TraceID, children[0].TraceID)

			for _, s := range exporter.GetSpans().Snapshots() {
				require.Equal(t, wf.TraceID, s.SpanContext().TraceID().String(), s.Name())
			}

			start := findSpan(exporter.GetSpans().Snapshots(), func(span trace.ReadOnlySpan) bool {
				return span.Name() == "scheduler.start-workflow"
			})
			require.NotNil(t, start)
			require.True(t, start.Parent().IsValid())
		},
	},
}

func findSpan(spans []trace.ReadOnlySpan, f func(trace.ReadOnlySpan) bool) trace.ReadOnlySpan {
	for _, span := range spans {
		if f(span) {
			return span
		}
	}

	return nil
}
