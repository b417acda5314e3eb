package order

import "errors"

var ErrInvalidTransition = errors.New("order: invalid status transition")

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
	StatusOnHold     Status = "ON_HOLD"
)

// transitions is the single source of truth for the order lifecycle.
// CANCELLED is unreachable once goods have shipped; a delivered order is
// unwound via refund only, which does not restock.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusOnHold},
	StatusConfirmed:  {StatusProcessing, StatusCancelled, StatusOnHold},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusOnHold:     {StatusPending, StatusCancelled},
	StatusCancelled:  nil,
	StatusRefunded:   nil,
}

// CanTransition reports whether the lifecycle permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from the status.
func IsTerminal(s Status) bool {
	targets, known := transitions[s]
	return known && len(targets) == 0
}

// CanRefund gates refunds on a delivered order whose payment completed.
func CanRefund(s Status, p PaymentStatus) bool {
	return s == StatusDelivered && p == PaymentCompleted
}
