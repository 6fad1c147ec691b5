package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headers adapts a message header list to the otel carrier interface.
// Set replaces an existing key so re-injecting never duplicates traceparent.
type headers []kafka.Header

var _ propagation.TextMapCarrier = (*headers)(nil)

func (h *headers) Get(key string) string { return HeaderValue(*h, key) }

func (h *headers) Set(key, value string) {
	for i, hd := range *h {
		if hd.Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headers) Keys() []string {
	out := make([]string, len(*h))
	for i, hd := range *h {
		out[i] = hd.Key
	}
	return out
}

// InjectTraceHeaders adds the span in ctx to hs as W3C headers.
func InjectTraceHeaders(ctx context.Context, hs []kafka.Header) []kafka.Header {
	c := headers(hs)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	return c
}

// ExtractTraceContext returns ctx with the remote span carried by msg, if any.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	c := headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}
