package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/event"
	dominv "github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
	"github.com/pharmadesk/ordercore/internal/observability"
	"github.com/pharmadesk/ordercore/internal/observability/logctx"
)

const (
	ledgerService = "ledger-service"

	useCaseAdjust       = "ledger.adjust"
	useCaseReorderPoint = "ledger.set_reorder_point"
	useCaseStatus       = "ledger.status"
)

var ErrValidation = errors.New("validation")

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type IDGenerator interface {
	NewID() string
}

// Service covers the ledger operations that do not belong to an order:
// manual corrections and reorder-point management.
type Service struct {
	coord     *uow.Coordinator
	ids       IDGenerator
	publisher event.Publisher
	now       func() time.Time

	tel          observability.Observability
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(coord *uow.Coordinator, ids IDGenerator, publisher event.Publisher, now func() time.Time, tel observability.Observability) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		coord:        coord,
		ids:          ids,
		publisher:    publisher,
		now:          now,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", ledgerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

type AdjustInput struct {
	Actor      string
	MedicineID string
	Delta      int
	Reason     string
}

type AdjustResult struct {
	Quantity int
	Status   dominv.StockStatus
}

// Adjust applies a signed manual correction (damage, recount) atomically,
// rejecting any delta that would drive the quantity below zero.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (_ *AdjustResult, err error) {
	ctx, finish := s.instrument(ctx, useCaseAdjust,
		attribute.String("medicine.id", in.MedicineID),
		attribute.Int("delta", in.Delta),
	)
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return nil, invalid("actor is required")
	case in.MedicineID == "":
		return nil, invalid("medicine id is required")
	case in.Delta == 0:
		return nil, invalid("delta must be non-zero")
	case in.Reason == "":
		return nil, invalid("reason is required")
	}

	now := s.now()
	var result *AdjustResult
	var low *dominv.StockLowEvent

	err = s.coord.Run(ctx, useCaseAdjust, func(ctx context.Context, tx uow.UnitOfWork) error {
		low = nil

		rec, gerr := tx.Inventory().Get(ctx, in.MedicineID)
		if gerr != nil {
			return gerr
		}
		before := rec.Quantity
		if aerr := rec.Adjust(in.Delta, now); aerr != nil {
			return aerr
		}
		if serr := tx.Inventory().Save(ctx, rec); serr != nil {
			return serr
		}
		if aerr := tx.Audit().Append(ctx, audit.Record{
			ID:         s.ids.NewID(),
			EntityType: audit.EntityInventory,
			EntityID:   in.MedicineID,
			Action:     audit.ActionStockAdjusted,
			OldValue:   strconv.Itoa(before),
			NewValue:   strconv.Itoa(rec.Quantity),
			Details:    in.Reason,
			Actor:      in.Actor,
			At:         now,
		}); aerr != nil {
			logctx.FromOr(ctx, s.log).Warn("audit_append_failed", observability.F("error", aerr.Error()))
		}
		if rec.Low() {
			e := dominv.NewStockLowEvent(rec, now)
			low = &e
		}
		result = &AdjustResult{Quantity: rec.Quantity, Status: rec.Status()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if low != nil && s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 300*time.Millisecond)
		if perr := s.publisher.Publish(pubCtx, *low); perr != nil {
			logctx.FromOr(ctx, s.log).Warn("event_publish_failed", observability.F("error", perr.Error()))
		}
		cancel()
	}
	return result, nil
}

type SetReorderPointInput struct {
	Actor        string
	MedicineID   string
	ReorderPoint int
}

// SetReorderPoint changes the low-stock threshold for a medicine.
func (s *Service) SetReorderPoint(ctx context.Context, in SetReorderPointInput) (err error) {
	ctx, finish := s.instrument(ctx, useCaseReorderPoint, attribute.String("medicine.id", in.MedicineID))
	defer func() { finish(err) }()

	switch {
	case in.Actor == "":
		return invalid("actor is required")
	case in.MedicineID == "":
		return invalid("medicine id is required")
	case in.ReorderPoint < 0:
		return invalid("reorder point must be zero or greater")
	}

	now := s.now()
	return s.coord.Run(ctx, useCaseReorderPoint, func(ctx context.Context, tx uow.UnitOfWork) error {
		rec, gerr := tx.Inventory().Get(ctx, in.MedicineID)
		if gerr != nil {
			return gerr
		}
		before := rec.ReorderPoint
		rec.ReorderPoint = in.ReorderPoint
		if serr := tx.Inventory().Save(ctx, rec); serr != nil {
			return serr
		}
		if aerr := tx.Audit().Append(ctx, audit.Record{
			ID:         s.ids.NewID(),
			EntityType: audit.EntityInventory,
			EntityID:   in.MedicineID,
			Action:     audit.ActionReorderPointSet,
			OldValue:   strconv.Itoa(before),
			NewValue:   strconv.Itoa(in.ReorderPoint),
			Actor:      in.Actor,
			At:         now,
		}); aerr != nil {
			logctx.FromOr(ctx, s.log).Warn("audit_append_failed", observability.F("error", aerr.Error()))
		}
		return nil
	})
}

type StatusResult struct {
	MedicineID   string
	Quantity     int
	ReorderPoint int
	Status       dominv.StockStatus
}

func (s *Service) Status(ctx context.Context, medicineID string) (_ *StatusResult, err error) {
	ctx, finish := s.instrument(ctx, useCaseStatus, attribute.String("medicine.id", medicineID))
	defer func() { finish(err) }()

	if medicineID == "" {
		return nil, invalid("medicine id is required")
	}

	var result *StatusResult
	err = s.coord.Run(ctx, useCaseStatus, func(ctx context.Context, tx uow.UnitOfWork) error {
		rec, gerr := tx.Inventory().Get(ctx, medicineID)
		if gerr != nil {
			return gerr
		}
		result = &StatusResult{
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
	return result, nil
}

func (s *Service) instrument(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))

	spanAttrs := append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := s.tel.Tracer().Start(ctx, "UC."+useCase, spanAttrs...)
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
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}
}
