package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Step is the last saga phase that completed for a receipt.
type Step string

const (
	StepCreateOrder Step = "create_order"
	StepAddPayment  Step = "add_payment"
	StepCloseOrder  Step = "close_order"
)

var stepOrder = []Step{StepCreateOrder, StepAddPayment, StepCloseOrder}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s.index() >= 0
}

func (s Step) index() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Previous returns the step that must precede s.
func (s Step) Previous() (Step, bool) {
	i := s.index()
	if i <= 0 {
		return "", false
	}
	return stepOrder[i-1], true
}

// Next returns the step that follows s.
func (s Step) Next() (Step, bool) {
	i := s.index()
	if i < 0 || i == len(stepOrder)-1 {
		return "", false
	}
	return stepOrder[i+1], true
}

// Terminal reports whether the saga is finished.
func (s Step) Terminal() bool {
	return s == StepCloseOrder
}

// CanAdvance reports whether a record at from may move to to. Steps only
// move forward one at a time.
func CanAdvance(from, to Step) bool {
	next, ok := from.Next()
	return ok && next == to
}

// SyncRecord tracks one receipt's progress through the saga. It is created
// only after the order exists in Syrve.
type SyncRecord struct {
	TargetOrderID   string
	SourceReceiptID string
	Step            Step
	CreationStatus  string
	TargetTimestamp int64
	OrderSnapshot   json.RawMessage
	SourceCreatedAt string
	SourceState     string
	PaymentKind     PaymentKind
	Amount          decimal.Decimal
	Discount        decimal.NullDecimal

	CreateOrderCorrelationID *string
	AddPaymentCorrelationID  *string
	CloseOrderCorrelationID  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSyncRecord builds the record persisted after create-order succeeds.
func NewSyncRecord(r *SourceReceipt, order CreatedOrder, payment Payment) *SyncRecord {
	rec := &SyncRecord{
		TargetOrderID:   order.OrderID,
		SourceReceiptID: r.ID.String(),
		Step:            StepCreateOrder,
		CreationStatus:  order.CreationStatus,
		TargetTimestamp: order.Timestamp,
		OrderSnapshot:   json.RawMessage(order.Order),
		SourceCreatedAt: r.CreatedAtRaw,
		SourceState:     r.State,
		PaymentKind:     payment.Kind,
		Amount:          payment.Sum,
		Discount:        r.DiscountAmount,
	}
	if order.CorrelationID != "" {
		id := order.CorrelationID
		rec.CreateOrderCorrelationID = &id
	}
	return rec
}

// CorrelationID returns the correlation id recorded for step, if any.
func (r *SyncRecord) CorrelationID(step Step) *string {
	switch step {
	case StepCreateOrder:
		return r.CreateOrderCorrelationID
	case StepAddPayment:
		return r.AddPaymentCorrelationID
	case StepCloseOrder:
		return r.CloseOrderCorrelationID
	}
	return nil
}

// LogEntry is an append-only diagnostic record.
type LogEntry struct {
	ID        int64
	Level     string
	Message   string
	ReceiptID *string
	Timestamp time.Time
}
