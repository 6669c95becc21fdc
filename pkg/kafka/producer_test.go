package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	type syncedData struct {
		ReceiptID     string `json:"receipt_id"`
		TargetOrderID string `json:"target_order_id"`
	}

	data := syncedData{ReceiptID: "1001", TargetOrderID: "ord-1"}
	event, err := NewEvent("syncbridge", "receipt.synced", "receipt", "1001", data,
		WithCorrelation("corr-1"),
		WithAttribute("run_id", "run-1"),
		WithAttribute("step", ""),
	)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "receipt.synced", event.Type)
	assert.Equal(t, "receipt", event.Subject)
	assert.Equal(t, "1001", event.Key)
	assert.Equal(t, "syncbridge", event.Source)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, map[string]string{"run_id": "run-1"}, event.Attributes)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	var got syncedData
	require.NoError(t, event.DecodePayload(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_Errors(t *testing.T) {
	_, err := NewEvent("syncbridge", "receipt.synced", "receipt", "1", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal receipt.synced payload")

	_, err = NewEvent("", "run.completed", "run", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event key is required")
	assert.Contains(t, err.Error(), "event source is required")
}

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	original, err := NewEvent("syncbridge", "run.completed", "run", "run-1", map[string]int{"completed": 3},
		WithOccurredAt(at))
	require.NoError(t, err)

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	restored, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID)
	assert.True(t, at.Equal(restored.OccurredAt))
	assert.JSONEq(t, string(original.Payload), string(restored.Payload))

	_, err = DecodeEvent([]byte(`{broken json`))
	require.Error(t, err)

	_, err = DecodeEvent([]byte(`{"event_id":"e1","schema_version":2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 2")
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	tests := []struct {
		domain string
		action string
		want   string
	}{
		{"receipt", "synced", "syncbridge.receipt.synced"},
		{"receipt", "stalled", "syncbridge.receipt.stalled"},
		{"run", "completed", "syncbridge.run.completed"},
	}

	for _, tt := range tests {
		t.Run(tt.domain+"."+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.domain, tt.action))
		})
	}
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092"})
	assert.Equal(t, []string{"broker1:9092"}, cfg.Brokers)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	reg := prometheus.NewRegistry()
	metrics, err := NewProducerMetrics(reg)
	require.NoError(t, err)
	p := NewProducerWithWriter(w, nil, metrics, discardLogger())

	event, err := NewEvent("syncbridge", "receipt.synced", "receipt", "1001", map[string]string{"k": "v"},
		WithCorrelation("corr-1"), WithAttribute("target_order_id", "ord-1"), WithAttribute("run_id", "run-1"))
	require.NoError(t, err)

	topic := Topic("receipt", "synced")
	require.NoError(t, p.Publish(context.Background(), topic, event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "1001", string(msg.Key))
	assert.Equal(t, "receipt.synced", headerValue(msg, "event_type"))
	assert.Equal(t, "syncbridge", headerValue(msg, "source"))
	assert.Equal(t, "corr-1", headerValue(msg, "correlation_id"))
	assert.Equal(t, "1", headerValue(msg, "schema_version"))
	assert.Equal(t, "run-1", headerValue(msg, "run_id"))
	assert.Equal(t, "ord-1", headerValue(msg, "target_order_id"))
	assert.Equal(t, event.OccurredAt, msg.Time)

	decoded, err := DecodeEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Publishes.WithLabelValues(topic, "receipt.synced", ResultPublished)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Publishes.WithLabelValues(topic, "receipt.synced", ResultFailed)))
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil, discardLogger())
	event, err := NewEvent("syncbridge", "receipt.stalled", "receipt", "1002", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, Topic("receipt", "stalled"), event))
	require.Len(t, w.messages, 1)
	assert.Contains(t, headerValue(w.messages[0], "traceparent"), span.SpanContext().TraceID().String())
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	metrics, err := NewProducerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	p := NewProducerWithWriter(w, nil, metrics, discardLogger())

	event, err := NewEvent("syncbridge", "run.completed", "run", "run-1", nil)
	require.NoError(t, err)

	topic := Topic("run", "completed")
	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to syncbridge.run.completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Publishes.WithLabelValues(topic, "run.completed", ResultFailed)))
}

func TestProducer_PublishRejectsInvalidEvent(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil, discardLogger())

	err := p.Publish(context.Background(), Topic("run", "completed"), &Event{Type: "run.completed", Source: "syncbridge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event key is required")
	assert.Empty(t, w.messages)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil, nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_CreatesInstance(t *testing.T) {
	// The writer connects lazily, so no broker is needed here.
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil, discardLogger())
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
