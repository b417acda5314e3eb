package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/catalog"
	"github.com/pharmadesk/ordercore/internal/domain/customer"
	"github.com/pharmadesk/ordercore/internal/domain/event"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	domorder "github.com/pharmadesk/ordercore/internal/domain/order"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
	"github.com/pharmadesk/ordercore/internal/observability"
	"github.com/pharmadesk/ordercore/internal/observability/logctx"
)

const (
	orderService = "order-service"

	useCaseOrderCreate   = "order.create"
	useCaseOrderCancel   = "order.cancel"
	useCaseUpdateStatus  = "order.update_status"
	useCaseRecordPayment = "order.record_payment"
	useCaseRefund        = "order.refund"
	useCaseLedgerStatus  = "order.ledger_status"

	spanPrefix     = "UC."
	publishTimeout = 300 * time.Millisecond
)

// ErrValidation marks malformed input rejected before any transaction opens.
var ErrValidation = errors.New("validation")

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Service orchestrates the order lifecycle: creation reserves stock,
// cancellation releases it, payment and refund mutate only the order. All
// multi-step mutations run through the transaction coordinator so they
// commit or abort as a whole.
type Service struct {
	coord     *uow.Coordinator
	catalog   catalog.Lookup
	customers customer.Lookup
	ids       IDGenerator
	numbers   NumberGenerator
	publisher event.Publisher
	now       func() time.Time

	tel          observability.Observability
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

// NewService wires the order service with explicit dependencies; tests
// substitute fakes without touching globals. A nil clock defaults to UTC
// wall time and a nil publisher disables event fanout.
func NewService(
	coord *uow.Coordinator,
	cat catalog.Lookup,
	customers customer.Lookup,
	ids IDGenerator,
	numbers NumberGenerator,
	publisher event.Publisher,
	now func() time.Time,
	tel observability.Observability,
) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		coord:        coord,
		catalog:      cat,
		customers:    customers,
		ids:          ids,
		numbers:      numbers,
		publisher:    publisher,
		now:          now,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// begin opens the use-case envelope: span, latency clock, and a finish
// callback that records the outcome on span, metrics, and log.
func (s *Service) begin(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))

	spanAttrs := append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+useCase, spanAttrs...)
	start := time.Now()

	return ctx, func(err error) {
		lat := time.Since(start).Seconds()
		outcome := "success"
		if err != nil {
			outcome = "error"
		}

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}

		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}
}

type OrderLine struct {
	MedicineID string
	Quantity   int
	// UnitPrice overrides the catalog price when set; zero falls back to
	// the catalog.
	UnitPrice decimal.Decimal
}

type CreateOrderInput struct {
	Actor         string
	CustomerID    string
	Lines         []OrderLine
	PaymentMethod string
	Shipping      domorder.ShippingInfo
	Notes         string
}

type CreateOrderResult struct {
	OrderID string
	Number  string
	Status  domorder.Status
	Total   decimal.Decimal
}

// CreateOrder reserves stock for every line, computes the money totals,
// and persists the order with its items inside one unit of work. If any
// reservation fails the whole unit of work aborts: no partial decrement
// survives.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, finish := s.begin(ctx, useCaseOrderCreate,
		attribute.String("order.customer_id", in.CustomerID),
		attribute.Int("order.lines", len(in.Lines)),
	)
	defer func() { finish(err) }()

	if err = validateCreate(in); err != nil {
		return nil, err
	}

	if _, err = s.customers.Customer(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	items := make([]domorder.Item, 0, len(in.Lines))
	for _, line := range in.Lines {
		med, lerr := s.catalog.Medicine(ctx, line.MedicineID)
		if lerr != nil {
			err = fmt.Errorf("medicine %s: %w", line.MedicineID, lerr)
			return nil, err
		}
		if !med.Active {
			err = fmt.Errorf("medicine %s: %w", line.MedicineID, catalog.ErrInactive)
			return nil, err
		}

		price := line.UnitPrice
		if price.IsZero() {
			price = med.UnitPrice
		}
		item, ierr := domorder.NewItem(line.MedicineID, line.Quantity, price, med.TaxRate, med.DiscountPct)
		if ierr != nil {
			err = ierr
			return nil, err
		}
		items = append(items, item)
	}

	now := s.now()
	orderID := s.ids.NewID()
	number := s.numbers.NewOrderNumber(now)

	var created *domorder.Order
	var lowStock []inventory.StockLowEvent

	err = s.coord.Run(ctx, useCaseOrderCreate, func(ctx context.Context, tx uow.UnitOfWork) error {
		// The coordinator may run this again after a conflict; start from
		// scratch each attempt.
		lowStock = lowStock[:0]

		for _, item := range items {
			rec, rerr := tx.Inventory().Get(ctx, item.MedicineID)
			if rerr != nil {
				return fmt.Errorf("medicine %s: %w", item.MedicineID, rerr)
			}
			before := rec.Quantity
			if rerr = rec.Reserve(item.Quantity, now); rerr != nil {
				return fmt.Errorf("medicine %s: %w", item.MedicineID, rerr)
			}
			if rerr = tx.Inventory().Save(ctx, rec); rerr != nil {
				return rerr
			}
			s.audit(ctx, tx, audit.Record{
				EntityType: audit.EntityInventory,
				EntityID:   item.MedicineID,
				Action:     audit.ActionStockReserved,
				OldValue:   strconv.Itoa(before),
				NewValue:   strconv.Itoa(rec.Quantity),
				Details:    "order creation: " + orderID,
				Actor:      in.Actor,
				At:         now,
			})
			if rec.Low() {
				lowStock = append(lowStock, inventory.NewStockLowEvent(rec, now))
			}
		}

		entity, derr := domorder.New(orderID, number, in.CustomerID, in.PaymentMethod, in.Shipping, items, now)
		if derr != nil {
			return derr
		}
		entity.Notes = in.Notes
		if ierr := tx.Orders().Insert(ctx, entity); ierr != nil {
			return ierr
		}
		s.audit(ctx, tx, audit.Record{
			EntityType: audit.EntityOrder,
			EntityID:   orderID,
			Action:     audit.ActionOrderCreated,
			NewValue:   string(entity.Status),
			Details:    "order " + number,
			Actor:      in.Actor,
			At:         now,
		})
		created = entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domorder.NewCreatedEvent(created, now))
	for _, e := range lowStock {
		s.publish(ctx, e)
	}

	return &CreateOrderResult{
		OrderID: created.ID,
		Number:  created.Number,
		Status:  created.Status,
		Total:   created.TotalAmount,
	}, nil
}

type CancelOrderInput struct {
	Actor   string
	OrderID string
	Reason  string
}

// CancelOrder releases exactly the quantities reserved at creation and
// moves the order to CANCELLED. The state machine table is the only
// eligibility gate.
func (s *Service) CancelOrder(ctx context.Context, in CancelOrderInput) (err error) {
	ctx, finish := s.begin(ctx, useCaseOrderCancel, attribute.String("order.id", in.OrderID))
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.OrderID == "":
		return invalid("order id is required")
	case in.Reason == "":
		return invalid("reason is required")
	}

	now := s.now()
	var cancelled *domorder.Order

	err = s.coord.Run(ctx, useCaseOrderCancel, func(ctx context.Context, tx uow.UnitOfWork) error {
		o, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return gerr
		}
		if !domorder.CanTransition(o.Status, domorder.StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", domorder.ErrInvalidTransition, o.Status, domorder.StatusCancelled)
		}

		for _, item := range o.Items {
			rec, rerr := tx.Inventory().Get(ctx, item.MedicineID)
			if rerr != nil {
				return fmt.Errorf("medicine %s: %w", item.MedicineID, rerr)
			}
			before := rec.Quantity
			if rerr = rec.Release(item.Quantity, now); rerr != nil {
				return rerr
			}
			if rerr = tx.Inventory().Save(ctx, rec); rerr != nil {
				return rerr
			}
			s.audit(ctx, tx, audit.Record{
				EntityType: audit.EntityInventory,
				EntityID:   item.MedicineID,
				Action:     audit.ActionStockReleased,
				OldValue:   strconv.Itoa(before),
				NewValue:   strconv.Itoa(rec.Quantity),
				Details:    "order cancellation: " + o.ID,
				Actor:      in.Actor,
				At:         now,
			})
		}

		before := o.Status
		if cerr := o.Cancel(in.Reason, now); cerr != nil {
			return cerr
		}
		if uerr := tx.Orders().Update(ctx, o); uerr != nil {
			return uerr
		}
		s.audit(ctx, tx, audit.Record{
			EntityType: audit.EntityOrder,
			EntityID:   o.ID,
			Action:     audit.ActionStatusChanged,
			OldValue:   string(before),
			NewValue:   string(o.Status),
			Details:    in.Reason,
			Actor:      in.Actor,
			At:         now,
		})
		cancelled = o
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domorder.NewCancelledEvent(cancelled, in.Reason, now))
	return nil
}

type UpdateStatusInput struct {
	Actor   string
	OrderID string
	Status  domorder.Status
	Note    string
}

// UpdateStatus drives fulfilment progression (confirm, process, ship,
// deliver, hold) through the transition table. Terminal transitions go
// through CancelOrder and RefundOrder, which carry their side effects.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (err error) {
	ctx, finish := s.begin(ctx, useCaseUpdateStatus,
		attribute.String("order.id", in.OrderID),
		attribute.String("order.status", string(in.Status)),
	)
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.OrderID == "":
		return invalid("order id is required")
	case in.Status == domorder.StatusCancelled || in.Status == domorder.StatusRefunded:
		return invalid("use the cancel or refund operation for terminal transitions")
	}

	now := s.now()
	return s.coord.Run(ctx, useCaseUpdateStatus, func(ctx context.Context, tx uow.UnitOfWork) error {
		o, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return gerr
		}
		before := o.Status
		if terr := o.TransitionTo(in.Status, now); terr != nil {
			return terr
		}
		if in.Note != "" {
			o.Notes = appendNote(o.Notes, in.Note)
		}
		if uerr := tx.Orders().Update(ctx, o); uerr != nil {
			return uerr
		}
		s.audit(ctx, tx, audit.Record{
			EntityType: audit.EntityOrder,
			EntityID:   o.ID,
			Action:     audit.ActionStatusChanged,
			OldValue:   string(before),
			NewValue:   string(o.Status),
			Details:    in.Note,
			Actor:      in.Actor,
			At:         now,
		})
		return nil
	})
}

type RecordPaymentInput struct {
	Actor   string
	OrderID string
	Amount  decimal.Decimal
	Method  string
}

// RecordPayment marks the order paid exactly once. No inventory effect.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (err error) {
	ctx, finish := s.begin(ctx, useCaseRecordPayment, attribute.String("order.id", in.OrderID))
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.OrderID == "":
		return invalid("order id is required")
	case !in.Amount.IsPositive():
		return invalid("amount must be greater than zero")
	}

	now := s.now()
	return s.coord.Run(ctx, useCaseRecordPayment, func(ctx context.Context, tx uow.UnitOfWork) error {
		o, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return gerr
		}
		before := o.PaymentStatus
		if perr := o.MarkPaid(in.Amount, in.Method, now); perr != nil {
			return perr
		}
		if uerr := tx.Orders().Update(ctx, o); uerr != nil {
			return uerr
		}
		s.audit(ctx, tx, audit.Record{
			EntityType: audit.EntityOrder,
			EntityID:   o.ID,
			Action:     audit.ActionPaymentRecorded,
			OldValue:   string(before),
			NewValue:   string(o.PaymentStatus),
			Details:    fmt.Sprintf("amount %s via %s", in.Amount, in.Method),
			Actor:      in.Actor,
			At:         now,
		})
		return nil
	})
}

type RefundOrderInput struct {
	Actor   string
	OrderID string
	Amount  decimal.Decimal
	Reason  string
}

// RefundOrder unwinds a delivered, paid order once. Inventory is
// deliberately not restocked.
func (s *Service) RefundOrder(ctx context.Context, in RefundOrderInput) (err error) {
	ctx, finish := s.begin(ctx, useCaseRefund, attribute.String("order.id", in.OrderID))
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.OrderID == "":
		return invalid("order id is required")
	case !in.Amount.IsPositive():
		return invalid("amount must be greater than zero")
	case in.Reason == "":
		return invalid("reason is required")
	}

	now := s.now()
	return s.coord.Run(ctx, useCaseRefund, func(ctx context.Context, tx uow.UnitOfWork) error {
		o, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return gerr
		}
		before := o.Status
		if rerr := o.Refund(in.Amount, in.Reason, now); rerr != nil {
			return rerr
		}
		if uerr := tx.Orders().Update(ctx, o); uerr != nil {
			return uerr
		}
		s.audit(ctx, tx, audit.Record{
			EntityType: audit.EntityOrder,
			EntityID:   o.ID,
			Action:     audit.ActionRefundRecorded,
			OldValue:   string(before),
			NewValue:   string(o.Status),
			Details:    fmt.Sprintf("amount %s: %s", in.Amount, in.Reason),
			Actor:      in.Actor,
			At:         now,
		})
		return nil
	})
}

type LedgerStatus struct {
	MedicineID   string
	Quantity     int
	ReorderPoint int
	Status       inventory.StockStatus
}

// LedgerStatus reads the current quantity and derived stock status for a
// medicine.
func (s *Service) LedgerStatus(ctx context.Context, medicineID string) (_ *LedgerStatus, err error) {
	ctx, finish := s.begin(ctx, useCaseLedgerStatus, attribute.String("medicine.id", medicineID))
	defer func() { finish(err) }()

	if medicineID == "" {
		err = invalid("medicine id is required")
		return nil, err
	}

	var ls *LedgerStatus
	err = s.coord.Run(ctx, useCaseLedgerStatus, func(ctx context.Context, tx uow.UnitOfWork) error {
		rec, gerr := tx.Inventory().Get(ctx, medicineID)
		if gerr != nil {
			return gerr
		}
		ls = &LedgerStatus{
			MedicineID:   rec.MedicineID,
			Quantity:     rec.Quantity,
			ReorderPoint: rec.ReorderPoint,
			Status:       rec.Status(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ls, nil
}

func validateCreate(in CreateOrderInput) error {
	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.CustomerID == "":
		return invalid("customer id is required")
	case len(in.Lines) == 0:
		return invalid("at least one item is required")
	}
	for _, line := range in.Lines {
		if line.MedicineID == "" {
			return invalid("medicine id is required")
		}
		if line.Quantity <= 0 {
			return invalid("quantity must be greater than zero")
		}
		if line.UnitPrice.IsNegative() {
			return invalid("unit price must be zero or greater")
		}
	}
	return nil
}

// audit stages a record in the unit of work. Audit is traceability, not
// control flow: a recorder failure is logged and never aborts the
// transaction.
func (s *Service) audit(ctx context.Context, tx uow.UnitOfWork, rec audit.Record) {
	if rec.ID == "" {
		rec.ID = s.ids.NewID()
	}
	if aerr := tx.Audit().Append(ctx, rec); aerr != nil {
		logctx.FromOr(ctx, s.log).Warn("audit_append_failed",
			observability.F("action", rec.Action),
			observability.F("error", aerr.Error()),
		)
	}
}

// publish fans an event out after commit. Failures are logged; they can
// never unwind the committed transaction.
func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if perr := s.publisher.Publish(pubCtx, e); perr != nil {
		logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", perr.Error()),
		)
	}
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}
