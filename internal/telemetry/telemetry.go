// Package telemetry wires the OTLP trace exporter. Pipelines open one span
// per run and one per area, which is enough to see where a batch spends its
// time without instrumenting every call.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/gridcast/internal/support/logger"
)

const tracerName = "github.com/tigerroll/gridcast"

// Config holds the OTLP trace exporter settings.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port; empty uses the exporter's
	// default (localhost:4318).
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Setup installs the global tracer provider when tracing is enabled. The
// returned shutdown function flushes pending spans; with tracing disabled it
// is a no-op.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "gridcast"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Infof("Tracing enabled (service: %s).", serviceName)
	return tp.Shutdown, nil
}

// Tracer returns the application tracer. With tracing disabled this yields
// no-op spans through the default global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
