package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	appinv "github.com/pharmadesk/ordercore/internal/application/inventory"
	apporder "github.com/pharmadesk/ordercore/internal/application/order"
	"github.com/pharmadesk/ordercore/internal/domain/catalog"
	"github.com/pharmadesk/ordercore/internal/domain/customer"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
	"github.com/pharmadesk/ordercore/internal/infrastructure/eventbus"
	"github.com/pharmadesk/ordercore/internal/infrastructure/id"
	"github.com/pharmadesk/ordercore/internal/infrastructure/memory"
	obsinfra "github.com/pharmadesk/ordercore/internal/infrastructure/observability"
	"github.com/pharmadesk/ordercore/internal/infrastructure/observability/oteltrace"
	"github.com/pharmadesk/ordercore/internal/infrastructure/observability/prometrics"
	"github.com/pharmadesk/ordercore/internal/infrastructure/observability/zaplogger"
	"github.com/pharmadesk/ordercore/internal/observability"
	httppresentation "github.com/pharmadesk/ordercore/internal/presentation/http"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "ordercore")
	env := getenvDefault("ENV", "dev")
	addr := getenvDefault("ADDR", ":8080")

	logger := zaplogger.New(
		observability.F("service", serviceName),
		observability.F("env", env),
	)

	reg := prometrics.New("pharmacy", "core")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(string(observability.MUsecaseRequests),
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: reg.Counter(string(observability.MHTTPRequests),
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MTxConflicts: reg.Counter(string(observability.MTxConflicts),
			"Serialization conflicts detected by the transactional store.", "op"),
		observability.MStockLowEvents: reg.Counter(string(observability.MStockLowEvents),
			"Count of stock.low events observed."),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: reg.Histogram(string(observability.MHTTPRequestDuration),
			"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route"),
	}
	tel := obsinfra.New(oteltrace.New(serviceName), logger, counters, histograms)

	store := memory.NewStore()
	seedDemoData(store)

	coord := uow.NewCoordinator(store, uow.DefaultMaxAttempts, uow.DefaultBackoff, tel)

	bus := eventbus.NewBus(tel.Logger())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())
	eventbus.NewLowStockWatcher(tel).Register(bus)

	orderService := apporder.NewService(
		coord,
		store.Catalog(),
		store.Customers(),
		id.NewUUIDGenerator(),
		id.NewOrderNumberGenerator(0),
		bus,
		nil,
		tel,
	)
	ledgerService := appinv.NewService(coord, id.NewUUIDGenerator(), bus, nil, tel)

	handler := httppresentation.NewHandler(orderService, ledgerService, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		tel.Logger().Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			tel.Logger().Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		tel.Logger().Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		tel.Logger().Info("http_server_stopped")
	}
}

// seedDemoData installs a small catalog so the binary is usable out of the
// box. A deployment replaces this with real collaborators.
func seedDemoData(store *memory.Store) {
	now := time.Now().UTC()

	store.SeedCustomer(customer.Customer{ID: "cust-1", Name: "Walk-in", Email: "walkin@example.com"})

	medicines := []catalog.Medicine{
		{
			ID:          "med-paracetamol",
			Name:        "Paracetamol 500mg",
			UnitPrice:   decimal.RequireFromString("4.50"),
			UnitCost:    decimal.RequireFromString("2.10"),
			TaxRate:     decimal.RequireFromString("8"),
			DiscountPct: decimal.Zero,
			Active:      true,
		},
		{
			ID:                   "med-amoxicillin",
			Name:                 "Amoxicillin 250mg",
			UnitPrice:            decimal.RequireFromString("12.00"),
			UnitCost:             decimal.RequireFromString("7.40"),
			TaxRate:              decimal.RequireFromString("8"),
			DiscountPct:          decimal.RequireFromString("5"),
			PrescriptionRequired: true,
			Active:               true,
		},
	}
	stock := map[string]int{
		"med-paracetamol": 120,
		"med-amoxicillin": 40,
	}
	for _, m := range medicines {
		store.SeedMedicine(m)
		rec, err := inventory.NewRecord(m.ID, stock[m.ID], 10, 500, now)
		if err != nil {
			panic(err)
		}
		store.SeedInventory(rec)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
