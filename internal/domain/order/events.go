package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatedEvent is emitted after an order and its reservations commit.
type CreatedEvent struct {
	OrderID    string
	Number     string
	CustomerID string
	Total      decimal.Decimal
	OccurredAt time.Time
}

func (CreatedEvent) EventName() string { return "order.created" }

func NewCreatedEvent(o *Order, now time.Time) CreatedEvent {
	return CreatedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		Total:      o.TotalAmount,
		OccurredAt: now,
	}
}

// CancelledEvent is emitted after a cancellation and its releases commit.
type CancelledEvent struct {
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

func (CancelledEvent) EventName() string { return "order.cancelled" }

func NewCancelledEvent(o *Order, reason string, now time.Time) CancelledEvent {
	return CancelledEvent{
		OrderID:    o.ID,
		Reason:     reason,
		OccurredAt: now,
	}
}
