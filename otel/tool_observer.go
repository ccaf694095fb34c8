package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/petalpeople/store"
	"github.com/petal-labs/petalpeople/tool"
)

// ToolObserver records tool invocations and store probes into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
	probes      metric.Int64Counter
	probeTime   metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"petalpeople.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"petalpeople.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	probes, err := meter.Int64Counter(
		"petalpeople.store.probes",
		metric.WithDescription("Number of store health probes"),
	)
	if err != nil {
		return nil, err
	}
	probeTime, err := meter.Float64Histogram(
		"petalpeople.store.probe.duration",
		metric.WithDescription("Store health probe duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		latency:     latency,
		probes:      probes,
		probeTime:   probeTime,
	}, nil
}

// ObserveInvoke records one invocation result.
func (o *ToolObserver) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	elapsed := time.Duration(observation.DurationMS) * time.Millisecond
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, elapsed.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(end.Add(-elapsed)),
	)
	if observation.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, observation.ErrorCode)
	}
	span.End(trace.WithTimestamp(end))
}

// ObserveProbe records one store health probe. Its signature matches
// store.ProberConfig.OnResult.
func (o *ToolObserver) ObserveProbe(result store.ProbeResult) {
	if o == nil {
		return
	}

	ctx := context.Background()
	options := metric.WithAttributes(attribute.Bool("healthy", result.Healthy()))
	o.probes.Add(ctx, 1, options)
	o.probeTime.Record(ctx, result.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "store.probe",
		trace.WithAttributes(attribute.Bool("healthy", result.Healthy())),
		trace.WithTimestamp(result.At),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(result.At.Add(result.Duration)))
}

var _ tool.Observer = (*ToolObserver)(nil)
