package inventory

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: medicine not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrWouldGoNegative   = errors.New("inventory: adjustment would drive quantity below zero")
)

type StockStatus string

const (
	StockInStock    StockStatus = "IN_STOCK"
	StockLowStock   StockStatus = "LOW_STOCK"
	StockOutOfStock StockStatus = "OUT_OF_STOCK"
)

// Record is the authoritative stock ledger entry for one medicine.
// Quantity is mutated exclusively through Reserve, Release and Adjust so
// the non-negative floor cannot be bypassed. Version is the store's
// concurrency token; callers never change it.
type Record struct {
	MedicineID   string
	Quantity     int
	ReorderPoint int
	MaxStock     int
	Version      uint64
	UpdatedAt    time.Time
}

func NewRecord(medicineID string, quantity, reorderPoint, maxStock int, now time.Time) (*Record, error) {
	if quantity < 0 {
		return nil, ErrWouldGoNegative
	}
	return &Record{
		MedicineID:   medicineID,
		Quantity:     quantity,
		ReorderPoint: reorderPoint,
		MaxStock:     maxStock,
		UpdatedAt:    now,
	}, nil
}

// Reserve decrements stock for an order line. It either applies fully or
// returns ErrInsufficientStock carrying the available amount, leaving the
// record untouched.
func (r *Record) Reserve(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > r.Quantity {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, quantity, r.Quantity)
	}
	r.Quantity -= quantity
	r.touch(now)
	return nil
}

// Release restores stock on cancellation. It only adds, so it cannot fail
// beyond quantity validation.
func (r *Record) Release(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	r.Quantity += quantity
	r.touch(now)
	return nil
}

// Adjust applies a signed manual correction (damage, recount), rejecting
// any delta that would take the quantity below zero.
func (r *Record) Adjust(delta int, now time.Time) error {
	if r.Quantity+delta < 0 {
		return fmt.Errorf("%w: quantity %d, delta %d", ErrWouldGoNegative, r.Quantity, delta)
	}
	r.Quantity += delta
	r.touch(now)
	return nil
}

// Status derives the stock level classification.
func (r *Record) Status() StockStatus {
	switch {
	case r.Quantity == 0:
		return StockOutOfStock
	case r.Quantity <= r.ReorderPoint:
		return StockLowStock
	default:
		return StockInStock
	}
}

// Low reports whether the record sits at or below its reorder point.
func (r *Record) Low() bool {
	return r.Quantity <= r.ReorderPoint
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now
}

// Clone returns a copy safe to hand across repository boundaries.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
