package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/internal/tracing"
)

// Export emits the given committed spans through the tracer, keeping their trace and span ids so the
// OpenTelemetry view matches the stored audit tree.
func Export(ctx context.Context, tracer trace.Tracer, spans []*Span) {
	for _, s := range spans {
		traceID, err := trace.TraceIDFromHex(s.TraceID)
		if err != nil {
			continue
		}

		spanID, err := trace.SpanIDFromHex(s.ID)
		if err != nil {
			continue
		}

		var parentID trace.SpanID
		if s.ParentSpanID != "" {
			parentID, _ = trace.SpanIDFromHex(s.ParentSpanID)
		}

		pctx := tracing.ParentContext(ctx, traceID, parentID)

		span := tracing.SpanWithStartTime(pctx, tracer, s.Operation, traceID, spanID, s.StartedAt,
			trace.WithAttributes(attributes(s)...),
		)

		switch s.State {
		case StateFailed:
			msg := stringAttr(s.Attributes, AttrError)
			if msg == "" {
				msg = "failed"
			}
			_ = tracing.WithSpanError(span, errors.New(msg))
		}

		if s.EndedAt != nil {
			span.End(trace.WithTimestamp(*s.EndedAt))
		} else {
			span.End(trace.WithTimestamp(s.StartedAt))
		}
	}
}

func attributes(s *Span) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(tracing.Operation, s.Operation),
		attribute.String(tracing.OperationType, string(s.OperationType)),
		attribute.String(tracing.ResourceType, string(s.ResourceType)),
		attribute.String(tracing.ResourceID, s.ResourceID),
		attribute.String(tracing.ResourceName, s.ResourceName),
		attribute.String(tracing.WorkflowInstanceID, s.WorkflowInstanceID),
		attribute.Int(tracing.Depth, s.Depth),
		attribute.String(tracing.Path, strings.Join(s.Path, "/")),
		attribute.String(tracing.State, string(s.State)),
	}

	for k, v := range s.Attributes {
		key := "wfnet.attr." + k
		switch v := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}

	return attrs
}
