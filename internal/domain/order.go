package domain

import "github.com/shopspring/decimal"

// ItemKindProduct is the only order item kind the bridge sends.
const ItemKindProduct = "Product"

// MappedOrderItem is a receipt line translated to a Syrve product.
type MappedOrderItem struct {
	TargetProductID string
	Kind            string
	Amount          decimal.Decimal
	Price           decimal.Decimal
}

// NewMappedOrderItem maps a receipt line onto a matched target product.
func NewMappedOrderItem(item ReceiptItem, product TargetProduct) MappedOrderItem {
	return MappedOrderItem{
		TargetProductID: product.ID,
		Kind:            ItemKindProduct,
		Amount:          item.AmountQuantity(),
		Price:           item.Price,
	}
}

// PaymentKind classifies the payment sent to Syrve.
type PaymentKind string

const (
	PaymentKindCash PaymentKind = "Cash"
	PaymentKindCard PaymentKind = "Card"
)

// cashTransactionTypeID is the SmartKasa transaction type for cash payments.
const cashTransactionTypeID = 0

// PaymentSettings maps payment kinds to configured Syrve payment type ids.
type PaymentSettings struct {
	CashTypeID string
	CardTypeID string
}

// Payment is the single payment line sent for an order.
type Payment struct {
	TypeID string
	Kind   PaymentKind
	Sum    decimal.Decimal
}

// ClassifyPayment returns Cash for transaction type 0 and Card otherwise,
// including when no type was reported.
func ClassifyPayment(tx PaymentTransaction) PaymentKind {
	if tx.TransactionTypeID != nil && *tx.TransactionTypeID == cashTransactionTypeID {
		return PaymentKindCash
	}
	return PaymentKindCard
}

// BuildPayment derives the payment line from the first transaction only.
// It returns false when the receipt carries no transactions.
func BuildPayment(r *SourceReceipt, settings PaymentSettings) (Payment, bool) {
	if len(r.PaymentTransactions) == 0 {
		return Payment{}, false
	}

	tx := r.PaymentTransactions[0]
	kind := ClassifyPayment(tx)

	typeID := settings.CardTypeID
	if kind == PaymentKindCash {
		typeID = settings.CashTypeID
	}

	return Payment{TypeID: typeID, Kind: kind, Sum: tx.Amount}, true
}

// DiscountSettings identifies the Syrve discount type applied to receipts.
type DiscountSettings struct {
	TypeID string
	Type   string
}

// Discount is the order-level discount sent with create-order.
type Discount struct {
	TypeID string
	Type   string
	Sum    decimal.Decimal
}

// BuildDiscount returns a discount only when amount is present and positive.
func BuildDiscount(amount decimal.NullDecimal, settings DiscountSettings) *Discount {
	if !amount.Valid || !amount.Decimal.IsPositive() {
		return nil
	}
	return &Discount{
		TypeID: settings.TypeID,
		Type:   settings.Type,
		Sum:    amount.Decimal,
	}
}

// OrderDraft is everything needed to run the saga for one receipt.
type OrderDraft struct {
	Items    []MappedOrderItem
	Discount *Discount
	Payment  Payment
}

// CreatedOrder is the result of a successful create-order call.
type CreatedOrder struct {
	OrderID        string
	CorrelationID  string
	CreationStatus string
	Timestamp      int64
	// Order is the order object as returned by Syrve.
	Order []byte
}

// OrderStatus is the Syrve-side view of an order used by reconciliation.
type OrderStatus struct {
	OrderID        string
	CreationStatus string
	OrderStatus    string
	ErrorMessage   string
}
