package eventbus

import (
	"context"

	"github.com/pharmadesk/ordercore/internal/domain/event"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/observability"
)

// LowStockWatcher surfaces stock.low events on the log and metrics so a
// reorder process can pick them up. It never feeds back into the ledger.
type LowStockWatcher struct {
	log     observability.Logger
	counter observability.Counter
}

func NewLowStockWatcher(tel observability.Observability) *LowStockWatcher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &LowStockWatcher{
		log:     tel.Logger().With(observability.F("component", "low_stock_watcher")),
		counter: tel.Metrics().Counter(observability.MStockLowEvents),
	}
}

func (w *LowStockWatcher) Register(sub event.Subscriber) {
	sub.Subscribe(inventory.StockLowEvent{}.EventName(), w.onStockLow)
}

func (w *LowStockWatcher) onStockLow(ctx context.Context, e event.Event) error {
	_ = ctx
	low, ok := e.(inventory.StockLowEvent)
	if !ok {
		return nil
	}
	w.counter.Add(1)
	w.log.Warn("stock_low",
		observability.F("medicine_id", low.MedicineID),
		observability.F("quantity", low.Quantity),
		observability.F("reorder_point", low.ReorderPoint),
	)
	return nil
}
