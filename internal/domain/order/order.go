package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("order: not found")
	ErrConflict           = errors.New("order: already exists")
	ErrInvalidQuantity    = errors.New("order: quantity must be greater than zero")
	ErrNegativePrice      = errors.New("order: unit price must be zero or greater")
	ErrEmptyItems         = errors.New("order: at least one item is required")
	ErrAlreadyPaid        = errors.New("order: payment already recorded")
	ErrAmountMismatch     = errors.New("order: payment amount does not match order total")
	ErrRefundNotAllowed   = errors.New("order: refund requires a delivered order with completed payment")
	ErrRefundExceedsTotal = errors.New("order: refund amount exceeds order total")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

var hundred = decimal.NewFromInt(100)

type ShippingInfo struct {
	Address    string
	City       string
	PostalCode string
	Phone      string
}

// Item is an order line. It is immutable after order creation; Quantity is
// the exact amount reserved from the inventory ledger at creation time and
// the exact amount released on cancellation.
type Item struct {
	MedicineID     string
	Quantity       int
	UnitPrice      decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// NewItem computes the line amounts from the unit price and the medicine's
// percentage rates (0-100). TaxAmount and DiscountAmount are line-level,
// already multiplied by quantity.
func NewItem(medicineID string, quantity int, unitPrice, taxRate, discountPct decimal.Decimal) (Item, error) {
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return Item{}, ErrNegativePrice
	}

	qty := decimal.NewFromInt(int64(quantity))
	tax := unitPrice.Mul(taxRate).Div(hundred).Mul(qty)
	discount := unitPrice.Mul(discountPct).Div(hundred).Mul(qty)
	total := unitPrice.Mul(qty).Add(tax).Sub(discount)

	return Item{
		MedicineID:     medicineID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total,
	}, nil
}

type Order struct {
	ID             string
	Number         string
	CustomerID     string
	Status         Status
	PaymentStatus  PaymentStatus
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	PaymentMethod  string
	Shipping       ShippingInfo
	Notes          string
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New builds a PENDING order from precomputed items and derives the money
// totals: Subtotal excludes tax and discount, TotalAmount equals
// Subtotal + TaxAmount - DiscountAmount, which is also the sum of the line
// totals.
func New(id, number, customerID, paymentMethod string, shipping ShippingInfo, items []Item, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	discount := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		tax = tax.Add(it.TaxAmount)
		discount = discount.Add(it.DiscountAmount)
	}

	return &Order{
		ID:             id,
		Number:         number,
		CustomerID:     customerID,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Sub(discount),
		PaymentMethod:  paymentMethod,
		Shipping:       shipping,
		Items:          append([]Item(nil), items...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TransitionTo moves the order along the lifecycle table, rejecting any
// edge the table does not define. Every status mutation goes through here.
func (o *Order) TransitionTo(next Status, now time.Time) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.touch(now)
	return nil
}

// Cancel transitions to CANCELLED and records the reason in the notes.
// Restocking the reserved quantities is the caller's responsibility and
// must happen in the same unit of work.
func (o *Order) Cancel(reason string, now time.Time) error {
	if err := o.TransitionTo(StatusCancelled, now); err != nil {
		return err
	}
	o.appendNote("cancelled: " + reason)
	return nil
}

// MarkPaid records a completed payment exactly once, requiring the amount
// to match the order total.
func (o *Order) MarkPaid(amount decimal.Decimal, method string, now time.Time) error {
	if o.PaymentStatus == PaymentCompleted {
		return ErrAlreadyPaid
	}
	if !amount.Equal(o.TotalAmount) {
		return fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, amount, o.TotalAmount)
	}
	o.PaymentStatus = PaymentCompleted
	if method != "" {
		o.PaymentMethod = method
	}
	o.touch(now)
	return nil
}

// Refund unwinds a delivered, paid order. Inventory is deliberately not
// restocked: the goods are assumed consumed or delivered.
func (o *Order) Refund(amount decimal.Decimal, reason string, now time.Time) error {
	if !CanRefund(o.Status, o.PaymentStatus) {
		return ErrRefundNotAllowed
	}
	if amount.GreaterThan(o.TotalAmount) {
		return fmt.Errorf("%w: got %s, total %s", ErrRefundExceedsTotal, amount, o.TotalAmount)
	}
	if err := o.TransitionTo(StatusRefunded, now); err != nil {
		return err
	}
	o.PaymentStatus = PaymentRefunded
	o.appendNote("refunded: " + reason)
	return nil
}

func (o *Order) appendNote(note string) {
	if o.Notes == "" {
		o.Notes = note
		return
	}
	o.Notes += "; " + note
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now
}

// Clone returns a deep copy safe to hand across repository boundaries.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}
