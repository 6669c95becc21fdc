package repository

import (
	"context"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
)

// SyncRecordRepository persists saga progress, one record per target order.
type SyncRecordRepository interface {
	// ExistsBySourceReceiptID reports whether any record references the source receipt.
	ExistsBySourceReceiptID(ctx context.Context, sourceReceiptID string) (bool, error)

	// Upsert inserts the record or replaces the one with the same target order id.
	Upsert(ctx context.Context, rec *domain.SyncRecord) error

	// AdvanceStep moves a record to step. The record must currently be at the
	// step immediately before it; anything else is a StepOrder error.
	AdvanceStep(ctx context.Context, targetOrderID string, step domain.Step) error

	// SetCorrelationID stores the correlation id returned by the given phase.
	SetCorrelationID(ctx context.Context, targetOrderID string, phase domain.Step, correlationID string) error

	// GetByTargetOrderID retrieves a record by its target order id.
	GetByTargetOrderID(ctx context.Context, targetOrderID string) (*domain.SyncRecord, error)

	// ListStalled returns records that have not reached close_order, oldest first.
	ListStalled(ctx context.Context, limit int) ([]domain.SyncRecord, error)
}

// LogRepository stores diagnostic log entries.
type LogRepository interface {
	// Append writes one entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *domain.LogEntry) error

	// ListByReceipt returns the entries tagged with receiptID, oldest first.
	ListByReceipt(ctx context.Context, receiptID string, limit int) ([]domain.LogEntry, error)
}

// Store bundles both repositories over one connection.
type Store interface {
	SyncRecordRepository
	LogRepository

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// DefaultStalledLimit caps ListStalled when no limit is given.
const DefaultStalledLimit = 500

// CorrelationColumn returns the column holding the correlation id for phase.
func CorrelationColumn(phase domain.Step) (string, bool) {
	switch phase {
	case domain.StepCreateOrder:
		return "create_order_correlation_id", true
	case domain.StepAddPayment:
		return "add_payment_correlation_id", true
	case domain.StepCloseOrder:
		return "close_order_correlation_id", true
	}
	return "", false
}
