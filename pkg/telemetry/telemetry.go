// Package telemetry wires the OpenTelemetry trace pipeline for mnemo
// processes. Tracing is off unless enabled; spans then flow either to an
// OTLP gRPC collector or to stdout for local debugging.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Config selects the trace exporter.
type Config struct {
	// Enabled turns tracing on. Off by default.
	Enabled bool

	// Endpoint is the OTLP gRPC collector address (host:port). Empty means
	// spans are written to StdoutWriter instead.
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// ServiceName overrides the reported service name. Default "mnemo".
	ServiceName string

	// StdoutWriter receives spans when no endpoint is configured. Nil
	// falls back to os.Stdout.
	StdoutWriter io.Writer
}

// Setup installs the global tracer provider and returns a shutdown function
// that flushes pending spans. With tracing disabled it is a no-op and the
// returned shutdown does nothing.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "mnemo"
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if cfg.Endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	} else {
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.StdoutWriter != nil {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(cfg.StdoutWriter))
		}
		exporter, err = stdouttrace.New(stdoutOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
