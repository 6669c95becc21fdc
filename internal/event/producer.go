// Package event publishes sync progress to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	pkgkafka "github.com/Swed0ua/Integration-SK-Surve/pkg/kafka"
)

// Topics for sync events.
var (
	TopicReceiptSynced  = pkgkafka.Topic("receipt", "synced")
	TopicReceiptStalled = pkgkafka.Topic("receipt", "stalled")
	TopicRunCompleted   = pkgkafka.Topic("run", "completed")
)

// Event subjects.
const (
	SubjectReceipt = "receipt"
	SubjectRun     = "run"
)

// SourceSyncBridge identifies events originating from this process.
const SourceSyncBridge = "syncbridge"

// ReceiptSyncedData is the payload for a receipt.synced event.
type ReceiptSyncedData struct {
	RunID                    string             `json:"run_id"`
	SourceReceiptID          string             `json:"source_receipt_id"`
	TargetOrderID            string             `json:"target_order_id"`
	PaymentKind              domain.PaymentKind `json:"payment_kind"`
	Amount                   decimal.Decimal    `json:"amount"`
	Discount                 *decimal.Decimal   `json:"discount,omitempty"`
	CreateOrderCorrelationID *string            `json:"create_order_correlation_id"`
	AddPaymentCorrelationID  *string            `json:"add_payment_correlation_id"`
	CloseOrderCorrelationID  *string            `json:"close_order_correlation_id"`
}

// ReceiptStalledData is the payload for a receipt.stalled event.
type ReceiptStalledData struct {
	RunID           string      `json:"run_id"`
	SourceReceiptID string      `json:"source_receipt_id"`
	TargetOrderID   string      `json:"target_order_id"`
	Step            domain.Step `json:"step"`
	Error           string      `json:"error"`
}

// Producer publishes sync events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReceiptSynced announces a receipt that reached close_order.
func (p *Producer) PublishReceiptSynced(ctx context.Context, runID string, rec *domain.SyncRecord) error {
	data := ReceiptSyncedData{
		RunID:                    runID,
		SourceReceiptID:          rec.SourceReceiptID,
		TargetOrderID:            rec.TargetOrderID,
		PaymentKind:              rec.PaymentKind,
		Amount:                   rec.Amount,
		CreateOrderCorrelationID: rec.CreateOrderCorrelationID,
		AddPaymentCorrelationID:  rec.AddPaymentCorrelationID,
		CloseOrderCorrelationID:  rec.CloseOrderCorrelationID,
	}
	if rec.Discount.Valid {
		d := rec.Discount.Decimal
		data.Discount = &d
	}

	opts := []pkgkafka.Option{
		pkgkafka.WithAttribute("run_id", runID),
		pkgkafka.WithAttribute("target_order_id", rec.TargetOrderID),
	}
	if rec.CloseOrderCorrelationID != nil {
		opts = append(opts, pkgkafka.WithCorrelation(*rec.CloseOrderCorrelationID))
	}
	evt, err := pkgkafka.NewEvent(SourceSyncBridge, TopicReceiptSynced, SubjectReceipt, rec.SourceReceiptID, data, opts...)
	if err != nil {
		return fmt.Errorf("create receipt.synced event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicReceiptSynced, evt); err != nil {
		return fmt.Errorf("publish receipt.synced event: %w", err)
	}

	p.logger.DebugContext(ctx, "published receipt.synced event",
		slog.String("receipt_id", rec.SourceReceiptID),
		slog.String("order_id", rec.TargetOrderID),
	)
	return nil
}

// PublishReceiptStalled announces a receipt whose saga stopped after create_order.
func (p *Producer) PublishReceiptStalled(ctx context.Context, runID string, rec *domain.SyncRecord, cause error) error {
	data := ReceiptStalledData{
		RunID:           runID,
		SourceReceiptID: rec.SourceReceiptID,
		TargetOrderID:   rec.TargetOrderID,
		Step:            rec.Step,
	}
	if cause != nil {
		data.Error = cause.Error()
	}

	evt, err := pkgkafka.NewEvent(SourceSyncBridge, TopicReceiptStalled, SubjectReceipt, rec.SourceReceiptID, data,
		pkgkafka.WithAttribute("run_id", runID),
		pkgkafka.WithAttribute("step", string(rec.Step)),
	)
	if err != nil {
		return fmt.Errorf("create receipt.stalled event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicReceiptStalled, evt); err != nil {
		return fmt.Errorf("publish receipt.stalled event: %w", err)
	}

	p.logger.DebugContext(ctx, "published receipt.stalled event",
		slog.String("receipt_id", rec.SourceReceiptID),
		slog.String("step", string(rec.Step)),
	)
	return nil
}

// PublishRunCompleted announces the summary of a finished run.
func (p *Producer) PublishRunCompleted(ctx context.Context, summary *domain.RunSummary) error {
	evt, err := pkgkafka.NewEvent(SourceSyncBridge, TopicRunCompleted, SubjectRun, summary.RunID, summary,
		pkgkafka.WithOccurredAt(summary.FinishedAt))
	if err != nil {
		return fmt.Errorf("create run.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicRunCompleted, evt); err != nil {
		return fmt.Errorf("publish run.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published run.completed event", slog.String("run_id", summary.RunID))
	return nil
}

// Noop discards every event. It is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishReceiptSynced(context.Context, string, *domain.SyncRecord) error { return nil }

func (Noop) PublishReceiptStalled(context.Context, string, *domain.SyncRecord, error) error {
	return nil
}

func (Noop) PublishRunCompleted(context.Context, *domain.RunSummary) error { return nil }
