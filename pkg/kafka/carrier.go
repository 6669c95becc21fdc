package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier lets an OpenTelemetry propagator read and write message
// headers. Set replaces a header in place rather than appending a duplicate.
type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) index(key string) int {
	for i, h := range *c.headers {
		if h.Key == key {
			return i
		}
	}
	return -1
}

func (c headerCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string((*c.headers)[i].Value)
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		(*c.headers)[i].Value = []byte(value)
		return
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(*c.headers))
	for i, h := range *c.headers {
		keys[i] = h.Key
	}
	return keys
}

// injectTraceContext writes the span in ctx into msg's headers.
func injectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})
}

// ExtractTraceContext returns ctx carrying the remote span found in msg's
// headers, for consumers of sync events.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})
}
