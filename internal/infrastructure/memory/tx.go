package memory

import (
	"context"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/domain/order"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
)

// tx buffers all writes and tracks the version of every row it read.
// Version 0 stands for "row absent", so a transaction that observed a
// missing row also conflicts if someone else inserts it first.
type tx struct {
	store *Store

	orderReads map[string]uint64
	invReads   map[string]uint64

	orderWrites map[string]*order.Order
	invWrites   map[string]*inventory.Record
	audits      []audit.Record
}

func newTx(s *Store) *tx {
	return &tx{
		store:       s,
		orderReads:  make(map[string]uint64),
		invReads:    make(map[string]uint64),
		orderWrites: make(map[string]*order.Order),
		invWrites:   make(map[string]*inventory.Record),
	}
}

func (t *tx) Orders() order.Repository        { return txOrders{t} }
func (t *tx) Inventory() inventory.Repository { return txInventory{t} }
func (t *tx) Audit() audit.Recorder           { return txAudit{t} }

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ver := range t.orderReads {
		if s.orders[id].version != ver {
			return uow.ErrConflict
		}
	}
	for id, ver := range t.invReads {
		if s.inventory[id].version != ver {
			return uow.ErrConflict
		}
	}

	for id, o := range t.orderWrites {
		row := s.orders[id]
		row.version++
		row.value = o.Clone()
		s.orders[id] = row
	}
	for id, rec := range t.invWrites {
		row := s.inventory[id]
		row.version++
		clone := rec.Clone()
		clone.Version = row.version
		row.value = clone
		s.inventory[id] = row
	}
	s.audits = append(s.audits, t.audits...)
	return nil
}

// readOrder captures the row version on first access.
func (t *tx) readOrder(id string) (*order.Order, bool) {
	t.store.mu.Lock()
	row, ok := t.store.orders[id]
	t.store.mu.Unlock()

	if _, seen := t.orderReads[id]; !seen {
		t.orderReads[id] = row.version
	}
	if !ok {
		return nil, false
	}
	return row.value.Clone(), true
}

func (t *tx) readRecord(id string) (*inventory.Record, bool) {
	t.store.mu.Lock()
	row, ok := t.store.inventory[id]
	t.store.mu.Unlock()

	if _, seen := t.invReads[id]; !seen {
		t.invReads[id] = row.version
	}
	if !ok {
		return nil, false
	}
	return row.value.Clone(), true
}

type txOrders struct{ t *tx }

func (r txOrders) Insert(ctx context.Context, o *order.Order) error {
	_ = ctx
	if _, staged := r.t.orderWrites[o.ID]; staged {
		return order.ErrConflict
	}
	if _, exists := r.t.readOrder(o.ID); exists {
		return order.ErrConflict
	}
	r.t.orderWrites[o.ID] = o.Clone()
	return nil
}

func (r txOrders) Get(ctx context.Context, id string) (*order.Order, error) {
	_ = ctx
	if o, staged := r.t.orderWrites[id]; staged {
		return o.Clone(), nil
	}
	o, ok := r.t.readOrder(id)
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (r txOrders) Update(ctx context.Context, o *order.Order) error {
	if _, staged := r.t.orderWrites[o.ID]; !staged {
		if _, err := r.Get(ctx, o.ID); err != nil {
			return err
		}
	}
	r.t.orderWrites[o.ID] = o.Clone()
	return nil
}

type txInventory struct{ t *tx }

func (r txInventory) Get(ctx context.Context, medicineID string) (*inventory.Record, error) {
	_ = ctx
	if rec, staged := r.t.invWrites[medicineID]; staged {
		return rec.Clone(), nil
	}
	rec, ok := r.t.readRecord(medicineID)
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return rec, nil
}

func (r txInventory) Save(ctx context.Context, rec *inventory.Record) error {
	_ = ctx
	if _, staged := r.t.invWrites[rec.MedicineID]; !staged {
		if _, seen := r.t.invReads[rec.MedicineID]; !seen {
			// Capture the version even on blind saves so the write still
			// participates in conflict detection.
			r.t.readRecord(rec.MedicineID)
		}
	}
	r.t.invWrites[rec.MedicineID] = rec.Clone()
	return nil
}

type txAudit struct{ t *tx }

func (r txAudit) Append(ctx context.Context, rec audit.Record) error {
	_ = ctx
	r.t.audits = append(r.t.audits, rec)
	return nil
}
