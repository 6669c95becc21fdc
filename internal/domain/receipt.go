package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Swed0ua/Integration-SK-Surve/pkg/validator"
)

// ExternalID is an identifier issued by an upstream system. SmartKasa sends
// numeric ids, so both JSON numbers and strings are accepted.
type ExternalID string

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("external id: %w", err)
		}
		*id = ExternalID(n.String())
	}
	return nil
}

func (id ExternalID) String() string { return string(id) }

// SourceReceipt is one sale event fetched from SmartKasa. It is read-only
// input to the sync saga.
type SourceReceipt struct {
	ID                  ExternalID           `json:"id" validate:"required"`
	CreatedAtRaw        string               `json:"created_at" validate:"required"`
	State               string               `json:"state"`
	Items               []ReceiptItem        `json:"items"`
	PaymentTransactions []PaymentTransaction `json:"payment_transactions" validate:"min=1"`
	DiscountAmount      decimal.NullDecimal  `json:"discount_amount"`

	// Raw is the receipt exactly as it was received.
	Raw json.RawMessage `json:"-"`
}

// ReceiptItem is a single line of a source receipt.
type ReceiptItem struct {
	ProductID ExternalID          `json:"product_id" validate:"required"`
	Quantity  decimal.NullDecimal `json:"quantity" validate:"omitempty,gt=0"`
	Price     decimal.Decimal     `json:"price" validate:"gte=0"`
}

// PaymentTransaction is a payment recorded on a source receipt. A nil
// TransactionTypeID means the register did not report one.
type PaymentTransaction struct {
	TransactionTypeID *int            `json:"transaction_type_id"`
	Amount            decimal.Decimal `json:"amount"`
}

// UnmarshalJSON decodes the receipt and keeps a copy of the original bytes.
func (r *SourceReceipt) UnmarshalJSON(data []byte) error {
	type plain SourceReceipt
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SourceReceipt(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// CreatedAt parses the receipt timestamp and normalizes it to UTC.
// Timestamps without a zone are taken as UTC.
func (r *SourceReceipt) CreatedAt() (time.Time, error) {
	return parseTimestamp(r.CreatedAtRaw)
}

// Validate checks the fields the saga depends on: an id, a parseable
// creation time and at least one payment. Lines are checked one at a time
// with ReceiptItem.Validate so a bad line does not reject the receipt.
func (r *SourceReceipt) Validate() error {
	if err := validator.Validate(r); err != nil {
		return err
	}
	if _, err := r.CreatedAt(); err != nil {
		return fmt.Errorf("field 'created_at' %w", err)
	}
	return nil
}

// Validate checks that the line names a product and carries usable numbers.
func (i ReceiptItem) Validate() error {
	return validator.Validate(i)
}

// AmountQuantity returns the line quantity, defaulting to 1 when absent.
func (i ReceiptItem) AmountQuantity() decimal.Decimal {
	if !i.Quantity.Valid {
		return decimal.NewFromInt(1)
	}
	return i.Quantity.Decimal
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
