package tracing

import (
	"context"
	"reflect"
	"time"
	"unsafe"

	"go.opentelemetry.io/otel/trace"
)

// SpanWithStartTime starts a span that carries the given, externally assigned, trace and span IDs. Spans
// are recorded by the engine first and exported later, so their identity has to survive the export.
func SpanWithStartTime(
	ctx context.Context, tracer trace.Tracer, name string, traceID trace.TraceID, spanID trace.SpanID, startTime time.Time, opts ...trace.SpanStartOption) trace.Span {

	opts = append(opts, trace.WithTimestamp(startTime), trace.WithSpanKind(trace.SpanKindInternal))
	_, span := tracer.Start(ctx,
		name,
		opts...,
	)

	SetSpanContext(span, traceID, spanID)

	return span
}

// ParentContext returns a context carrying the given span as remote parent. A zero span ID returns ctx
// unchanged.
func ParentContext(ctx context.Context, traceID trace.TraceID, spanID trace.SpanID) context.Context {
	if !spanID.IsValid() {
		return ctx
	}

	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
}

func SetSpanContext(span trace.Span, tid trace.TraceID, sid trace.SpanID) {
	sc := span.SpanContext()
	if tid.IsValid() {
		sc = sc.WithTraceID(tid)
	}
	sc = sc.WithSpanID(sid)
	setSpanContext(span, sc)
}

func setSpanContext(span trace.Span, sc trace.SpanContext) {
	spanP := reflect.ValueOf(span)
	spanV := reflect.Indirect(spanP)
	field := spanV.FieldByName("spanContext")

	// noop or nonrecording spans store their spanContext in `sc`, but we ignore
	// those for our purposes here.
	if !field.IsValid() || field.IsZero() {
		return
	}

	setUnexportedField(field, sc)
}

func setUnexportedField(field reflect.Value, value any) {
	reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).
		Elem().
		Set(reflect.ValueOf(value))
}
