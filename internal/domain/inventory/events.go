package inventory

import "time"

// StockLowEvent is emitted after a commit leaves a record at or below its
// reorder point. Reorder signalling hangs off this event; delivery of the
// actual notification is outside this core.
type StockLowEvent struct {
	MedicineID   string
	Quantity     int
	ReorderPoint int
	OccurredAt   time.Time
}

func (StockLowEvent) EventName() string { return "stock.low" }

func NewStockLowEvent(r *Record, now time.Time) StockLowEvent {
	return StockLowEvent{
		MedicineID:   r.MedicineID,
		Quantity:     r.Quantity,
		ReorderPoint: r.ReorderPoint,
		OccurredAt:   now,
	}
}
