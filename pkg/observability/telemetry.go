// Package observability provides OpenTelemetry-based metrics and
// tracing for the cart service, with graceful degradation when no
// exporter is configured.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the observability stack.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter is pluggable (OTLP, stdout, ...). Nil disables tracing.
	TraceExporter sdktrace.SpanExporter

	// TraceSampleRate is 0.0 to 1.0; 1.0 traces everything.
	TraceSampleRate float64

	// MetricReader is pluggable (Prometheus, OTLP, ...). Nil disables metrics.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry holds the assembled providers and instruments.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Metrics        *Metrics
	Logger         *slog.Logger

	shutdown []func(context.Context) error
}

// Init initializes OpenTelemetry. With a nil exporter or reader the
// corresponding signal degrades to a no-op; commands still run.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tel := &Telemetry{Logger: cfg.Logger}

	if cfg.TraceExporter != nil {
		sampleRate := cfg.TraceSampleRate
		if sampleRate <= 0 {
			sampleRate = 1.0
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(cfg.TraceExporter),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate)),
		)
		tel.TracerProvider = tp
		tel.shutdown = append(tel.shutdown, tp.Shutdown)
		otel.SetTracerProvider(tp)
	} else {
		tel.TracerProvider = noop.NewTracerProvider()
	}

	var meterProvider *sdkmetric.MeterProvider
	if cfg.MetricReader != nil {
		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(cfg.MetricReader),
		)
		tel.shutdown = append(tel.shutdown, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)
	} else {
		// An empty provider acts as a no-op.
		meterProvider = sdkmetric.NewMeterProvider()
	}
	tel.MeterProvider = meterProvider

	metrics, err := NewMetrics(meterProvider.Meter("cartstore"))
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	tel.Metrics = metrics

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return tel, nil
}

// Tracer returns a tracer from the configured provider.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.TracerProvider.Tracer(name)
}

// Shutdown flushes and stops all providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range t.shutdown {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
