// Package otel provides OpenTelemetry integration for tool invocations and
// store health probes.
package otel

import (
	"context"
	"errors"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InstrumentationName names the meter and tracer used by ToolObserver.
const InstrumentationName = "github.com/petal-labs/petalpeople"

// Config configures Setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is an OTLP/HTTP collector URL such as
	// http://localhost:4318. Empty disables trace export.
	OTLPEndpoint string
	// MetricReader, if set, is attached to the meter provider.
	MetricReader sdkmetric.Reader
	// SpanExporter overrides the OTLP exporter.
	SpanExporter sdktrace.SpanExporter
}

// Providers holds the SDK providers created by Setup.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Observer       *ToolObserver
}

// Setup builds tracer and meter providers, installs them as the global
// providers, and returns a ToolObserver bound to them.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "petalpeople"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res := resource.NewSchemaless(attrs...)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	exporter := cfg.SpanExporter
	if exporter == nil && strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		otlp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.OTLPEndpoint)))
		if err != nil {
			return nil, err
		}
		exporter = otlp
	}
	if exporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(cfg.MetricReader))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	observer, err := NewToolObserver(mp.Meter(InstrumentationName), tp.Tracer(InstrumentationName))
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	otelapi.SetTracerProvider(tp)
	otelapi.SetMeterProvider(mp)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Observer:       observer,
	}, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(p.TracerProvider.Shutdown(ctx), p.MeterProvider.Shutdown(ctx))
}
