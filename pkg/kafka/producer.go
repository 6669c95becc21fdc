package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultProducerConfig returns defaults for the low-volume event stream a
// sync run produces.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps the kafka-go writer for publishing events.
type Producer struct {
	writer  MessageWriter
	brokers []string
	metrics *ProducerMetrics
	logger  *slog.Logger
}

// NewProducer creates a new Kafka producer. Metrics may be nil.
func NewProducer(cfg ProducerConfig, metrics *ProducerMetrics, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(w, cfg.Brokers, metrics, logger)
}

// NewProducerWithWriter creates a producer on top of an existing writer.
func NewProducerWithWriter(w MessageWriter, brokers []string, metrics *ProducerMetrics, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		writer:  w,
		brokers: brokers,
		metrics: metrics,
		logger:  logger,
	}
}

// Publish validates event and writes it to topic keyed by event.Key.
// Envelope fields and attributes are copied into message headers.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.Key),
		Value:   data,
		Headers: eventHeaders(event),
		Time:    event.OccurredAt,
	}
	injectTraceContext(ctx, &msg)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.observe(topic, event.Type, start, err)
	if err != nil {
		p.logger.WarnContext(ctx, "sync event not delivered",
			slog.String("topic", topic),
			slog.String("event_id", event.ID),
			slog.String("key", event.Key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "sync event delivered",
		slog.String("topic", topic),
		slog.String("event_id", event.ID),
		slog.String("key", event.Key),
	)
	return nil
}

// eventHeaders builds message headers. Attributes follow in key order.
func eventHeaders(e *Event) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.Type)},
		{Key: "source", Value: []byte(e.Source)},
		{Key: "schema_version", Value: []byte(strconv.Itoa(e.SchemaVersion))},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(e.Attributes[k])})
	}
	return headers
}

// Ping reports whether any configured broker answers a metadata request.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers tries each broker in turn and succeeds on the first one that
// returns its broker list. When none does, every broker's failure is reported.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range brokers {
		err := probeBroker(ctx, addr)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

func probeBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

// Close flushes buffered messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
