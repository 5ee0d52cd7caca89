package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func tracingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "trace-exporter",
			Usage:   "Exporter for workflow spans (none, stdout, otlp)",
			Value:   "none",
			Sources: cli.EnvVars("WFNET_TRACE_EXPORTER"),
		},
		&cli.StringFlag{
			Name:    "otlp-endpoint",
			Usage:   "host:port of the OTLP/HTTP trace receiver",
			Value:   "localhost:4318",
			Sources: cli.EnvVars("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		&cli.BoolFlag{
			Name:    "otlp-insecure",
			Usage:   "Use plain HTTP for the OTLP exporter",
			Sources: cli.EnvVars("WFNET_OTLP_INSECURE"),
		},
	}
}

// tracerProvider returns the provider audit spans are exported through and a function flushing it.
func tracerProvider(ctx context.Context, cmd *cli.Command) (trace.TracerProvider, func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter

	switch name := cmd.String("trace-exporter"); name {
	case "", "none":
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil

	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		exporter = exp

	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cmd.String("otlp-endpoint"))}
		if cmd.Bool("otlp-insecure") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}

		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q", name)
	}

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("wfnet"),
		attribute.String("wfnet.backend", cmd.String("backend")),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)

	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}
