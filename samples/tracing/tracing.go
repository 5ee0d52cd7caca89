package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/client"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
	"github.com/cschleiden/go-wfnet/samples"
)

var Parcel = definition.New("parcel", "v1").
	Condition("start", "packed", "end").
	Task("pack", definition.From("start"), definition.To("packed"), definition.AutoWorkItem()).
	Task("label", definition.From("packed"), definition.To("end"), definition.Dummy()).
	MustBuild()

func main() {
	ctx := context.Background()

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatal(err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("tracing-sample"),
		)),
	)
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(ctx)

	b := samples.GetBackend("tracing", backend.WithTracerProvider(tp))

	r := registry.New()
	if err := r.Register(Parcel); err != nil {
		panic("could not register workflow: " + err.Error())
	}

	c := client.New(engine.New(b, r))

	tracer := tp.Tracer("tracing-sample")
	ctx, span := tracer.Start(ctx, "ship-parcel")
	defer span.End()

	id, err := c.InitializeWorkflow(ctx, "parcel", "", engine.WithSpanAttributes(map[string]any{"source": "sample"}))
	if err != nil {
		panic("could not start workflow: " + err.Error())
	}

	wi, err := c.Engine().CurrentWorkItem(ctx, id, "pack")
	if err != nil {
		panic("could not find work item: " + err.Error())
	}

	if err := c.StartWorkItem(ctx, wi.ID); err != nil {
		panic("could not start work item: " + err.Error())
	}

	if err := c.CompleteWorkItem(ctx, wi.ID, map[string]int{"weight": 3}); err != nil {
		panic("could not complete work item: " + err.Error())
	}

	wf, err := c.WaitForWorkflow(ctx, id, 5*time.Second)
	if err != nil {
		panic("error waiting for workflow: " + err.Error())
	}

	samples.Trace(id, "Workflow", wf.State)
}
