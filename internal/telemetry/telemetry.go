// Package telemetry wires OpenTelemetry tracing around provider calls, tool
// calls, and database writes. When disabled (or no endpoint configured) it
// falls back to the SDK's own no-op tracer so call sites never need a nil
// check.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the package-wide tracer used by every instrumented subsystem.
var Tracer trace.Tracer = otel.Tracer("skynet-gateway")

// Shutdown flushes and stops the trace provider, if one was installed.
var Shutdown = func(context.Context) error { return nil }

// Init installs an OTLP-over-HTTP trace exporter when enabled and endpoint
// is non-empty; otherwise tracing stays a no-op.
func Init(ctx context.Context, enabled bool, endpoint, serviceName string) error {
	if !enabled || endpoint == "" {
		return nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	Tracer = tp.Tracer("skynet-gateway")
	Shutdown = tp.Shutdown
	return nil
}

// StartSpan is a thin wrapper kept for call-site brevity across packages
// that don't want to import go.opentelemetry.io/otel/trace directly.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name)
}
