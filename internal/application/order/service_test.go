package order

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/catalog"
	"github.com/pharmadesk/ordercore/internal/domain/customer"
	"github.com/pharmadesk/ordercore/internal/domain/event"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	domorder "github.com/pharmadesk/ordercore/internal/domain/order"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
	"github.com/pharmadesk/ordercore/internal/infrastructure/memory"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubIDs struct {
	mu sync.Mutex
	n  int
}

func (s *stubIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + strconv.Itoa(s.n)
}

type stubNumbers struct{}

func (stubNumbers) NewOrderNumber(t time.Time) string {
	return "ORD-" + t.UTC().Format("20060102") + "-TEST01"
}

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *capturePublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	store *memory.Store
	svc   *Service
	pub   *capturePublisher
}

// newFixture seeds one customer and three stocked medicines:
// med-a 10 units at 10.00 (10% tax), med-b 5 units at 5.00, and an
// inactive med-halted. med-unstocked exists in the catalog only.
func newFixture(t *testing.T) *fixture {
	return newFixtureAttempts(t, 3)
}

func newFixtureAttempts(t *testing.T, attempts int) *fixture {
	t.Helper()
	store := memory.NewStore()

	store.SeedCustomer(customer.Customer{ID: "cust-1", Name: "Walk-in", Email: "walkin@example.com"})

	store.SeedMedicine(catalog.Medicine{
		ID: "med-a", Name: "Paracetamol", UnitPrice: dec("10.00"),
		TaxRate: dec("10"), DiscountPct: decimal.Zero, Active: true,
	})
	store.SeedMedicine(catalog.Medicine{
		ID: "med-b", Name: "Ibuprofen", UnitPrice: dec("5.00"),
		TaxRate: decimal.Zero, DiscountPct: decimal.Zero, Active: true,
	})
	store.SeedMedicine(catalog.Medicine{
		ID: "med-halted", Name: "Recalled", UnitPrice: dec("2.00"), Active: false,
	})
	store.SeedMedicine(catalog.Medicine{
		ID: "med-unstocked", Name: "Catalog only", UnitPrice: dec("3.00"), Active: true,
	})

	seed := func(id string, qty, reorder int) {
		rec, err := inventory.NewRecord(id, qty, reorder, 500, testTime)
		require.NoError(t, err)
		store.SeedInventory(rec)
	}
	seed("med-a", 10, 2)
	seed("med-b", 5, 1)
	seed("med-halted", 3, 0)

	coord := uow.NewCoordinator(store, attempts, time.Millisecond, nil)
	pub := &capturePublisher{}
	svc := NewService(coord, store.Catalog(), store.Customers(), &stubIDs{}, stubNumbers{}, pub,
		func() time.Time { return testTime }, nil)

	return &fixture{store: store, svc: svc, pub: pub}
}

func (f *fixture) qty(t *testing.T, medicineID string) int {
	t.Helper()
	q, ok := f.store.Quantity(medicineID)
	require.True(t, ok, "no ledger record for %s", medicineID)
	return q
}

func (f *fixture) create(t *testing.T, lines ...OrderLine) *CreateOrderResult {
	t.Helper()
	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Actor:         "tester",
		CustomerID:    "cust-1",
		Lines:         lines,
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) advance(t *testing.T, orderID string, statuses ...domorder.Status) {
	t.Helper()
	for _, st := range statuses {
		require.NoError(t, f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
			Actor: "tester", OrderID: orderID, Status: st,
		}))
	}
}

func auditActions(f *fixture) []string {
	trail := f.store.AuditTrail()
	out := make([]string, 0, len(trail))
	for _, rec := range trail {
		out = append(out, rec.Action)
	}
	return out
}

func TestCreateOrder_ReservesStockAndDerivesTotals(t *testing.T) {
	f := newFixture(t)

	result := f.create(t,
		OrderLine{MedicineID: "med-a", Quantity: 2},
		OrderLine{MedicineID: "med-b", Quantity: 1},
	)

	assert.Equal(t, domorder.StatusPending, result.Status)
	assert.Equal(t, "ORD-20250601-TEST01", result.Number)
	// med-a: 2 x 10.00 + 10% tax = 22; med-b: 1 x 5.00 = 5.
	assert.True(t, result.Total.Equal(dec("27")), "total = %s", result.Total)

	assert.Equal(t, 8, f.qty(t, "med-a"))
	assert.Equal(t, 4, f.qty(t, "med-b"))

	o, ok := f.store.Order(result.OrderID)
	require.True(t, ok)
	assert.Equal(t, domorder.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(dec("25")))
	assert.True(t, o.TaxAmount.Equal(dec("2")))
	assert.Len(t, o.Items, 2)

	assert.Equal(t, []string{
		audit.ActionStockReserved,
		audit.ActionStockReserved,
		audit.ActionOrderCreated,
	}, auditActions(f))
	for _, rec := range f.store.AuditTrail() {
		assert.Equal(t, "tester", rec.Actor)
		assert.NotEmpty(t, rec.ID)
	}

	assert.Equal(t, []string{"order.created"}, f.pub.names())
}

func TestCreateOrder_FailedLineAbortsEverything(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Actor:      "tester",
		CustomerID: "cust-1",
		Lines: []OrderLine{
			{MedicineID: "med-a", Quantity: 2},
			{MedicineID: "med-b", Quantity: 2},
			{MedicineID: "med-b", Quantity: 100},
		},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// The first two reservations must not survive the abort.
	assert.Equal(t, 10, f.qty(t, "med-a"))
	assert.Equal(t, 5, f.qty(t, "med-b"))
	_, ok := f.store.Order("id-1")
	assert.False(t, ok)
	assert.Empty(t, f.store.AuditTrail())
	assert.Empty(t, f.pub.names())
}

func TestCreateOrder_LookupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		Actor: "tester", CustomerID: "ghost",
		Lines: []OrderLine{{MedicineID: "med-a", Quantity: 1}},
	})
	assert.ErrorIs(t, err, customer.ErrNotFound)

	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{
		Actor: "tester", CustomerID: "cust-1",
		Lines: []OrderLine{{MedicineID: "ghost", Quantity: 1}},
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{
		Actor: "tester", CustomerID: "cust-1",
		Lines: []OrderLine{{MedicineID: "med-halted", Quantity: 1}},
	})
	assert.ErrorIs(t, err, catalog.ErrInactive)

	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{
		Actor: "tester", CustomerID: "cust-1",
		Lines: []OrderLine{{MedicineID: "med-unstocked", Quantity: 1}},
	})
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	assert.Equal(t, 10, f.qty(t, "med-a"))
	assert.Empty(t, f.store.AuditTrail())
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateOrderInput{
		{CustomerID: "cust-1", Lines: []OrderLine{{MedicineID: "med-a", Quantity: 1}}},
		{Actor: "tester", Lines: []OrderLine{{MedicineID: "med-a", Quantity: 1}}},
		{Actor: "tester", CustomerID: "cust-1"},
		{Actor: "tester", CustomerID: "cust-1", Lines: []OrderLine{{Quantity: 1}}},
		{Actor: "tester", CustomerID: "cust-1", Lines: []OrderLine{{MedicineID: "med-a"}}},
		{Actor: "tester", CustomerID: "cust-1", Lines: []OrderLine{{MedicineID: "med-a", Quantity: -1}}},
		{Actor: "tester", CustomerID: "cust-1", Lines: []OrderLine{{MedicineID: "med-a", Quantity: 1, UnitPrice: dec("-1")}}},
	}
	for _, in := range cases {
		_, err := f.svc.CreateOrder(ctx, in)
		assert.ErrorIs(t, err, ErrValidation, "%+v", in)
	}
}

func TestCreateOrder_LinePriceOverridesCatalog(t *testing.T) {
	f := newFixture(t)

	result := f.create(t, OrderLine{MedicineID: "med-b", Quantity: 2, UnitPrice: dec("4.00")})

	assert.True(t, result.Total.Equal(dec("8")), "total = %s", result.Total)
}

func TestCreateOrder_PublishesLowStockAfterCommit(t *testing.T) {
	f := newFixture(t)

	// med-b: 5 units, reorder point 1. Taking 4 leaves exactly 1.
	f.create(t, OrderLine{MedicineID: "med-b", Quantity: 4})

	names := f.pub.names()
	require.Equal(t, []string{"order.created", "stock.low"}, names)

	low, ok := f.pub.events[1].(inventory.StockLowEvent)
	require.True(t, ok)
	assert.Equal(t, "med-b", low.MedicineID)
	assert.Equal(t, 1, low.Quantity)
	assert.Equal(t, 1, low.ReorderPoint)
}

func TestCreateOrder_TwoConcurrentOrdersOneWins(t *testing.T) {
	f := newFixture(t)

	// Stock of med-a is 10; two orders of 6 cannot both fit.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(context.Background(), CreateOrderInput{
				Actor:      "tester",
				CustomerID: "cust-1",
				Lines:      []OrderLine{{MedicineID: "med-a", Quantity: 6}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, inventory.ErrInsufficientStock):
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 4, f.qty(t, "med-a"))
}

func TestCreateOrder_ConcurrentNeverOversells(t *testing.T) {
	// Generous retry budget so contenders fail on stock, not on retries.
	f := newFixtureAttempts(t, 50)

	const contenders = 20
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(context.Background(), CreateOrderInput{
				Actor:      "tester",
				CustomerID: "cust-1",
				Lines:      []OrderLine{{MedicineID: "med-b", Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	assert.Equal(t, 5, succeeded, "exactly the available stock may be sold")
	assert.Equal(t, 0, f.qty(t, "med-b"))
}

func TestCancelOrder_RestoresReservedStock(t *testing.T) {
	f := newFixture(t)

	result := f.create(t,
		OrderLine{MedicineID: "med-a", Quantity: 3},
		OrderLine{MedicineID: "med-b", Quantity: 2},
	)
	require.Equal(t, 7, f.qty(t, "med-a"))
	require.Equal(t, 3, f.qty(t, "med-b"))

	err := f.svc.CancelOrder(context.Background(), CancelOrderInput{
		Actor: "tester", OrderID: result.OrderID, Reason: "customer changed mind",
	})
	require.NoError(t, err)

	assert.Equal(t, 10, f.qty(t, "med-a"))
	assert.Equal(t, 5, f.qty(t, "med-b"))

	o, ok := f.store.Order(result.OrderID)
	require.True(t, ok)
	assert.Equal(t, domorder.StatusCancelled, o.Status)
	assert.Contains(t, o.Notes, "customer changed mind")

	actions := auditActions(f)
	assert.Equal(t, []string{
		audit.ActionStockReserved,
		audit.ActionStockReserved,
		audit.ActionOrderCreated,
		audit.ActionStockReleased,
		audit.ActionStockReleased,
		audit.ActionStatusChanged,
	}, actions)

	assert.Equal(t, []string{"order.created", "order.cancelled"}, f.pub.names())
}

func TestCancelOrder_SecondCancelRejected(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 3})

	ctx := context.Background()
	in := CancelOrderInput{Actor: "tester", OrderID: result.OrderID, Reason: "dup"}
	require.NoError(t, f.svc.CancelOrder(ctx, in))

	err := f.svc.CancelOrder(ctx, in)
	assert.ErrorIs(t, err, domorder.ErrInvalidTransition)
	assert.Equal(t, 10, f.qty(t, "med-a"), "stock released exactly once")
}

func TestCancelOrder_RejectedAfterShipping(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 3})
	f.advance(t, result.OrderID, domorder.StatusConfirmed, domorder.StatusProcessing, domorder.StatusShipped)

	err := f.svc.CancelOrder(context.Background(), CancelOrderInput{
		Actor: "tester", OrderID: result.OrderID, Reason: "too late",
	})
	assert.ErrorIs(t, err, domorder.ErrInvalidTransition)
	assert.Equal(t, 7, f.qty(t, "med-a"), "shipped goods stay reserved")
}

func TestCancelOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CancelOrder(context.Background(), CancelOrderInput{
		Actor: "tester", OrderID: "ghost", Reason: "whatever",
	})
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 1})
	ctx := context.Background()

	require.NoError(t, f.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: "tester", OrderID: result.OrderID, Status: domorder.StatusConfirmed, Note: "verified by pharmacist",
	}))
	o, _ := f.store.Order(result.OrderID)
	assert.Equal(t, domorder.StatusConfirmed, o.Status)
	assert.Contains(t, o.Notes, "verified by pharmacist")

	// Skipping ahead is rejected.
	err := f.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: "tester", OrderID: result.OrderID, Status: domorder.StatusDelivered,
	})
	assert.ErrorIs(t, err, domorder.ErrInvalidTransition)

	// Terminal targets go through their dedicated operations.
	for _, st := range []domorder.Status{domorder.StatusCancelled, domorder.StatusRefunded} {
		err := f.svc.UpdateStatus(ctx, UpdateStatusInput{
			Actor: "tester", OrderID: result.OrderID, Status: st,
		})
		assert.ErrorIs(t, err, ErrValidation)
	}

	err = f.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: "tester", OrderID: "ghost", Status: domorder.StatusConfirmed,
	})
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestUpdateStatus_HoldAndResume(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 1})

	f.advance(t, result.OrderID, domorder.StatusOnHold, domorder.StatusPending, domorder.StatusConfirmed)

	o, _ := f.store.Order(result.OrderID)
	assert.Equal(t, domorder.StatusConfirmed, o.Status)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 1})
	ctx := context.Background()

	err := f.svc.RecordPayment(ctx, RecordPaymentInput{
		Actor: "tester", OrderID: result.OrderID, Amount: dec("1"), Method: "card",
	})
	assert.ErrorIs(t, err, domorder.ErrAmountMismatch)

	require.NoError(t, f.svc.RecordPayment(ctx, RecordPaymentInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Method: "card",
	}))
	o, _ := f.store.Order(result.OrderID)
	assert.Equal(t, domorder.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, "card", o.PaymentMethod)

	err = f.svc.RecordPayment(ctx, RecordPaymentInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Method: "card",
	})
	assert.ErrorIs(t, err, domorder.ErrAlreadyPaid)

	assert.Contains(t, auditActions(f), audit.ActionPaymentRecorded)
}

func TestRefundOrder_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	result := f.create(t, OrderLine{MedicineID: "med-a", Quantity: 2})
	ctx := context.Background()

	// Refund before delivery is rejected.
	err := f.svc.RefundOrder(ctx, RefundOrderInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Reason: "early",
	})
	assert.ErrorIs(t, err, domorder.ErrRefundNotAllowed)

	f.advance(t, result.OrderID,
		domorder.StatusConfirmed, domorder.StatusProcessing,
		domorder.StatusShipped, domorder.StatusDelivered,
	)

	// Delivered but unpaid is still rejected.
	err = f.svc.RefundOrder(ctx, RefundOrderInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Reason: "unpaid",
	})
	assert.ErrorIs(t, err, domorder.ErrRefundNotAllowed)

	require.NoError(t, f.svc.RecordPayment(ctx, RecordPaymentInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Method: "card",
	}))

	err = f.svc.RefundOrder(ctx, RefundOrderInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total.Add(dec("1")), Reason: "too much",
	})
	assert.ErrorIs(t, err, domorder.ErrRefundExceedsTotal)

	require.NoError(t, f.svc.RefundOrder(ctx, RefundOrderInput{
		Actor: "tester", OrderID: result.OrderID, Amount: result.Total, Reason: "damaged in transit",
	}))

	o, _ := f.store.Order(result.OrderID)
	assert.Equal(t, domorder.StatusRefunded, o.Status)
	assert.Equal(t, domorder.PaymentRefunded, o.PaymentStatus)

	// Refund never restocks: the goods left the pharmacy.
	assert.Equal(t, 8, f.qty(t, "med-a"))
	assert.Contains(t, auditActions(f), audit.ActionRefundRecorded)
}

func TestLedgerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ls, err := f.svc.LedgerStatus(ctx, "med-a")
	require.NoError(t, err)
	assert.Equal(t, 10, ls.Quantity)
	assert.Equal(t, inventory.StockInStock, ls.Status)

	f.create(t, OrderLine{MedicineID: "med-a", Quantity: 8})

	ls, err = f.svc.LedgerStatus(ctx, "med-a")
	require.NoError(t, err)
	assert.Equal(t, 2, ls.Quantity)
	assert.Equal(t, inventory.StockLowStock, ls.Status)

	_, err = f.svc.LedgerStatus(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.LedgerStatus(ctx, "ghost")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}
