package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Step Transition Tests
// ============================================================================

func TestStep_Order(t *testing.T) {
	next, ok := StepCreateOrder.Next()
	require.True(t, ok)
	assert.Equal(t, StepAddPayment, next)

	next, ok = StepAddPayment.Next()
	require.True(t, ok)
	assert.Equal(t, StepCloseOrder, next)

	_, ok = StepCloseOrder.Next()
	assert.False(t, ok)

	prev, ok := StepCloseOrder.Previous()
	require.True(t, ok)
	assert.Equal(t, StepAddPayment, prev)

	_, ok = StepCreateOrder.Previous()
	assert.False(t, ok)
}

func TestCanAdvance(t *testing.T) {
	assert.True(t, CanAdvance(StepCreateOrder, StepAddPayment))
	assert.True(t, CanAdvance(StepAddPayment, StepCloseOrder))

	assert.False(t, CanAdvance(StepCreateOrder, StepCloseOrder), "no skipping")
	assert.False(t, CanAdvance(StepCloseOrder, StepAddPayment), "no regressing")
	assert.False(t, CanAdvance(StepAddPayment, StepAddPayment), "no repeating")
	assert.False(t, CanAdvance("bogus", StepAddPayment))
}

func TestStep_ValidAndTerminal(t *testing.T) {
	assert.True(t, StepAddPayment.Valid())
	assert.False(t, Step("CREATE_ORDER").Valid())
	assert.True(t, StepCloseOrder.Terminal())
	assert.False(t, StepAddPayment.Terminal())
}

// ============================================================================
// SyncRecord Tests
// ============================================================================

func TestNewSyncRecord(t *testing.T) {
	r := &SourceReceipt{
		ID:             "1001",
		CreatedAtRaw:   "2025-06-02T10:15:00Z",
		State:          "closed",
		DiscountAmount: decimal.NewNullDecimal(decimal.RequireFromString("5")),
	}
	order := CreatedOrder{
		OrderID:        "ord-1",
		CorrelationID:  "corr-create",
		CreationStatus: "InProgress",
		Timestamp:      1748859300000,
		Order:          []byte(`{"id":"ord-1"}`),
	}
	payment := Payment{Kind: PaymentKindCash, Sum: decimal.RequireFromString("150")}

	rec := NewSyncRecord(r, order, payment)

	assert.Equal(t, "ord-1", rec.TargetOrderID)
	assert.Equal(t, "1001", rec.SourceReceiptID)
	assert.Equal(t, StepCreateOrder, rec.Step)
	assert.Equal(t, "InProgress", rec.CreationStatus)
	assert.Equal(t, PaymentKindCash, rec.PaymentKind)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("150")))
	assert.JSONEq(t, `{"id":"ord-1"}`, string(rec.OrderSnapshot))

	require.NotNil(t, rec.CreateOrderCorrelationID)
	assert.Equal(t, "corr-create", *rec.CreateOrderCorrelationID)
	assert.Nil(t, rec.AddPaymentCorrelationID)
	assert.Nil(t, rec.CloseOrderCorrelationID)
	assert.Same(t, rec.CreateOrderCorrelationID, rec.CorrelationID(StepCreateOrder))
	assert.Nil(t, rec.CorrelationID(StepAddPayment))
}

func TestNewSyncRecord_EmptyCorrelationStaysNil(t *testing.T) {
	rec := NewSyncRecord(&SourceReceipt{ID: "1"}, CreatedOrder{OrderID: "o"}, Payment{})
	assert.Nil(t, rec.CreateOrderCorrelationID)
}

// ============================================================================
// RunSummary Tests
// ============================================================================

func TestRunSummary_Record(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := NewRunSummary(start)
	assert.NotEmpty(t, s.RunID)

	for _, o := range []Outcome{
		OutcomeCompleted, OutcomeCompleted, OutcomeStalled, OutcomeFailed,
		OutcomeDuplicate, OutcomeUnmapped, OutcomeInvalid,
	} {
		s.Record(o)
	}
	s.Finish(start.Add(90 * time.Second))

	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Stalled)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, 1, s.Unmapped)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 7, s.Processed())
	assert.True(t, s.HasFailures())
	assert.Equal(t, 90*time.Second, s.Duration)
}

func TestRunSummary_RejectedNotProcessed(t *testing.T) {
	s := NewRunSummary(time.Now())
	s.Reject()
	s.Reject()
	s.InWindow = 1
	s.Record(OutcomeInvalid)

	assert.Equal(t, 2, s.Rejected)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 1, s.Processed())
	assert.LessOrEqual(t, s.Processed(), s.InWindow)
}

func TestRunSummary_NoFailures(t *testing.T) {
	s := NewRunSummary(time.Now())
	s.Record(OutcomeCompleted)
	s.Record(OutcomeDuplicate)
	assert.False(t, s.HasFailures())
}
