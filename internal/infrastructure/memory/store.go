package memory

import (
	"context"
	"sync"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/catalog"
	"github.com/pharmadesk/ordercore/internal/domain/customer"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/domain/order"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
)

type orderRow struct {
	version uint64
	value   *order.Order
}

type invRow struct {
	version uint64
	value   *inventory.Record
}

// Store is an in-memory transactional store with optimistic concurrency.
// Every row carries a version; a transaction records the version of each
// row it reads and buffers its writes. Commit re-validates the read set
// under the store mutex and reports uow.ErrConflict when any read row has
// moved, so a concurrent check-then-decrement can never act on a stale
// quantity.
type Store struct {
	mu        sync.Mutex
	orders    map[string]orderRow
	inventory map[string]invRow
	audits    []audit.Record
	medicines map[string]catalog.Medicine
	customers map[string]customer.Customer
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[string]orderRow),
		inventory: make(map[string]invRow),
		medicines: make(map[string]catalog.Medicine),
		customers: make(map[string]customer.Customer),
	}
}

// RunInTransaction executes fn against a fresh transaction. A non-nil
// error from fn aborts: buffered writes are dropped and nothing reaches
// the store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx uow.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// SeedInventory installs a ledger record outside any transaction. Intended
// for wiring and tests.
func (s *Store) SeedInventory(rec *inventory.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := rec.Clone()
	clone.Version = 1
	s.inventory[rec.MedicineID] = invRow{version: 1, value: clone}
}

func (s *Store) SeedMedicine(m catalog.Medicine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines[m.ID] = m
}

func (s *Store) SeedCustomer(c customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// Quantity reads the committed stock quantity for a medicine.
func (s *Store) Quantity(medicineID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.inventory[medicineID]
	if !ok {
		return 0, false
	}
	return row.value.Quantity, true
}

// Order reads a committed order.
func (s *Store) Order(id string) (*order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return row.value.Clone(), true
}

// AuditTrail returns a copy of the committed audit records in append order.
func (s *Store) AuditTrail() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.audits...)
}

// Catalog returns the read-only medicine lookup backed by the seeded data.
func (s *Store) Catalog() catalog.Lookup { return catalogLookup{s} }

// Customers returns the read-only customer lookup backed by the seeded data.
func (s *Store) Customers() customer.Lookup { return customerLookup{s} }

type catalogLookup struct{ s *Store }

func (l catalogLookup) Medicine(ctx context.Context, id string) (*catalog.Medicine, error) {
	_ = ctx
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	m, ok := l.s.medicines[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	clone := m
	return &clone, nil
}

type customerLookup struct{ s *Store }

func (l customerLookup) Customer(ctx context.Context, id string) (*customer.Customer, error) {
	_ = ctx
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	c, ok := l.s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	clone := c
	return &clone, nil
}
