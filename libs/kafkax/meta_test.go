package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers = %v", got)
	}
}

func TestNewMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := NewMessage(ctx, "scheduling.booking.created.v1", "booking-1",
		EventMeta{EventID: "evt-1", EventType: "booking.created"}, []byte(`{}`))

	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "booking.created" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if HeaderValue(msg.Headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), msg))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatal("trace id not propagated")
	}
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := NewMessage(context.Background(), "topic-a", "key-a", EventMeta{}, nil)
	msg.Headers = nil
	meta := ExtractEventMeta(msg)
	if meta.EventID != "key-a" || meta.EventType != "topic-a" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestInjectTraceHeadersReplacesExisting(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	hs := InjectTraceHeaders(ctx, []kafka.Header{{Key: "traceparent", Value: []byte("stale")}})
	count := 0
	for _, h := range hs {
		if h.Key == "traceparent" {
			count++
		}
	}
	if count != 1 || HeaderValue(hs, "traceparent") == "stale" {
		t.Fatalf("traceparent not replaced: %v", hs)
	}
}
