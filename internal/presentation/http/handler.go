package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	appinv "github.com/pharmadesk/ordercore/internal/application/inventory"
	apporder "github.com/pharmadesk/ordercore/internal/application/order"
	"github.com/pharmadesk/ordercore/internal/domain/catalog"
	"github.com/pharmadesk/ordercore/internal/domain/customer"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	domorder "github.com/pharmadesk/ordercore/internal/domain/order"
	"github.com/pharmadesk/ordercore/internal/domain/uow"
	"github.com/pharmadesk/ordercore/internal/observability"
)

const componentHTTPHandler = "http_server"

// Handler is the thin JSON edge over the order and ledger services. All
// rules live in the services; this layer only decodes, delegates, and maps
// errors onto status codes.
type Handler struct {
	orders *apporder.Service
	ledger *appinv.Service
	log    observability.Logger
	tel    observability.Observability
}

func NewHandler(orders *apporder.Service, ledger *appinv.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		orders: orders,
		ledger: ledger,
		log:    tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:    tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, http.MethodPost, "/orders", h.handleCreateOrder)
	h.handle(mux, http.MethodPost, "/orders/cancel", h.handleCancelOrder)
	h.handle(mux, http.MethodPost, "/orders/status", h.handleUpdateStatus)
	h.handle(mux, http.MethodPost, "/orders/payment", h.handleRecordPayment)
	h.handle(mux, http.MethodPost, "/orders/refund", h.handleRefundOrder)
	h.handle(mux, http.MethodGet, "/ledger/status", h.handleLedgerStatus)
	h.handle(mux, http.MethodPost, "/ledger/adjust", h.handleAdjust)
	h.handle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) handle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	wrapped := ObservabilityMiddleware(h.log, route, h.tel)(handler)
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

type orderLineRequest struct {
	MedicineID string          `json:"medicine_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	Actor         string             `json:"actor"`
	CustomerID    string             `json:"customer_id"`
	Lines         []orderLineRequest `json:"lines"`
	PaymentMethod string             `json:"payment_method"`
	Address       string             `json:"address"`
	City          string             `json:"city"`
	PostalCode    string             `json:"postal_code"`
	Phone         string             `json:"phone"`
	Notes         string             `json:"notes"`
}

type createOrderResponse struct {
	OrderID string          `json:"order_id"`
	Number  string          `json:"number"`
	Status  domorder.Status `json:"status"`
	Total   decimal.Decimal `json:"total"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lines := make([]apporder.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, apporder.OrderLine{
			MedicineID: l.MedicineID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
		})
	}

	result, err := h.orders.CreateOrder(r.Context(), apporder.CreateOrderInput{
		Actor:         req.Actor,
		CustomerID:    req.CustomerID,
		Lines:         lines,
		PaymentMethod: req.PaymentMethod,
		Shipping: domorder.ShippingInfo{
			Address:    req.Address,
			City:       req.City,
			PostalCode: req.PostalCode,
			Phone:      req.Phone,
		},
		Notes: req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID: result.OrderID,
		Number:  result.Number,
		Status:  result.Status,
		Total:   result.Total,
	})
}

type cancelOrderRequest struct {
	Actor   string `json:"actor"`
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.orders.CancelOrder(r.Context(), apporder.CancelOrderInput{
		Actor:   req.Actor,
		OrderID: req.OrderID,
		Reason:  req.Reason,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": req.OrderID, "status": string(domorder.StatusCancelled)})
}

type updateStatusRequest struct {
	Actor   string `json:"actor"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Note    string `json:"note"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.orders.UpdateStatus(r.Context(), apporder.UpdateStatusInput{
		Actor:   req.Actor,
		OrderID: req.OrderID,
		Status:  domorder.Status(req.Status),
		Note:    req.Note,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": req.OrderID, "status": req.Status})
}

type recordPaymentRequest struct {
	Actor   string          `json:"actor"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.orders.RecordPayment(r.Context(), apporder.RecordPaymentInput{
		Actor:   req.Actor,
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Method:  req.Method,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": req.OrderID, "payment_status": string(domorder.PaymentCompleted)})
}

type refundOrderRequest struct {
	Actor   string          `json:"actor"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

func (h *Handler) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.orders.RefundOrder(r.Context(), apporder.RefundOrderInput{
		Actor:   req.Actor,
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": req.OrderID, "status": string(domorder.StatusRefunded)})
}

func (h *Handler) handleLedgerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orders.LedgerStatus(r.Context(), r.URL.Query().Get("medicine_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type adjustRequest struct {
	Actor      string `json:"actor"`
	MedicineID string `json:"medicine_id"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.ledger.Adjust(r.Context(), appinv.AdjustInput{
		Actor:      req.Actor,
		MedicineID: req.MedicineID,
		Delta:      req.Delta,
		Reason:     req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apporder.ErrValidation),
		errors.Is(err, appinv.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrWouldGoNegative),
		errors.Is(err, domorder.ErrInvalidTransition),
		errors.Is(err, domorder.ErrAlreadyPaid),
		errors.Is(err, domorder.ErrAmountMismatch),
		errors.Is(err, domorder.ErrRefundNotAllowed),
		errors.Is(err, domorder.ErrRefundExceedsTotal),
		errors.Is(err, catalog.ErrInactive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, uow.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
