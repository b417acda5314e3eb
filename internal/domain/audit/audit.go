package audit

import (
	"context"
	"time"
)

const (
	EntityOrder     = "order"
	EntityInventory = "inventory"
)

const (
	ActionOrderCreated    = "order_created"
	ActionStatusChanged   = "status_changed"
	ActionStockReserved   = "stock_reserved"
	ActionStockReleased   = "stock_released"
	ActionStockAdjusted   = "stock_adjusted"
	ActionReorderPointSet = "reorder_point_set"
	ActionPaymentRecorded = "payment_recorded"
	ActionRefundRecorded  = "refund_recorded"
)

// Record is one append-only trace of a mutation: what changed, from what to
// what, why, and who asked for it. It is used for traceability, never for
// control flow.
type Record struct {
	ID         string
	EntityType string
	EntityID   string
	Action     string
	OldValue   string
	NewValue   string
	Details    string
	Actor      string
	At         time.Time
}

type Recorder interface {
	Append(ctx context.Context, rec Record) error
}
