// Package telemetry sets up tracing and Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ShutdownFunc flushes and stops telemetry exporters.
type ShutdownFunc func(context.Context) error

// TracingOptions configures NewTracerProvider.
type TracingOptions struct {
	Enabled     bool
	ServiceName string
	Version     string

	// Writer receives exported spans (default stderr).
	Writer io.Writer

	// SetGlobal installs the provider as the otel global.
	SetGlobal bool
}

// NewTracerProvider returns an SDK provider exporting spans to Writer, or a
// no-op provider when tracing is disabled.
func NewTracerProvider(optFns ...func(o *TracingOptions)) (trace.TracerProvider, ShutdownFunc, error) {
	opts := TracingOptions{
		ServiceName: "assistmesh",
		Writer:      os.Stderr,
		SetGlobal:   true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(opts.ServiceName))}
	if opts.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(opts.Version)))
	}

	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	if opts.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return tp, tp.Shutdown, nil
}
