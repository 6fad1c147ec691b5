package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanRef is the W3C form of a span, small enough to persist in a column.
type SpanRef struct {
	Traceparent string
	Tracestate  string
}

// Capture returns the reference for the span active in ctx. It is empty when
// there is no span or no propagator is installed.
func Capture(ctx context.Context) SpanRef {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return SpanRef{Traceparent: m.Get("traceparent"), Tracestate: m.Get("tracestate")}
}

func (r SpanRef) IsZero() bool { return r.Traceparent == "" && r.Tracestate == "" }

// Resume returns ctx with r installed as the remote parent span.
func (r SpanRef) Resume(ctx context.Context) context.Context {
	if r.IsZero() {
		return ctx
	}
	m := propagation.MapCarrier{}
	if r.Traceparent != "" {
		m.Set("traceparent", r.Traceparent)
	}
	if r.Tracestate != "" {
		m.Set("tracestate", r.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}

// EndSpan marks span failed when err is non-nil, then ends it.
func EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
