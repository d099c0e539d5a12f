package stencil

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "impractical.co/stencil"

type telemetry struct {
	tracer   trace.Tracer
	rendered metric.Int64Counter
}

// newTelemetry uses the global otel providers, so it reports nothing until
// the program installs an SDK.
func newTelemetry() telemetry {
	rendered, err := otel.Meter(instrumentationName).Int64Counter("stencil.components.rendered",
		metric.WithDescription("Number of component renders."),
		metric.WithUnit("{render}"),
	)
	if err != nil {
		rendered, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("stencil.components.rendered")
	}
	return telemetry{
		tracer:   otel.Tracer(instrumentationName),
		rendered: rendered,
	}
}

func (t telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t telemetry) componentRendered(ctx context.Context, component string) {
	t.rendered.Add(ctx, 1, metric.WithAttributes(attribute.String("stencil.component", component)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
