package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	appOrder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	domainInventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "minishop.http"
	maxBodyBytes         = 1 << 20
)

// UseCases is the orchestrator surface the HTTP layer serves.
type UseCases struct {
	CreateOrder   application.UseCase[appOrder.CreateOrderInput, *domainOrder.Order]
	UpdateStatus  application.UseCase[appOrder.UpdateStatusInput, *domainOrder.Order]
	CancelOrder   application.UseCase[appOrder.CancelOrderInput, *domainOrder.Order]
	GetOrder      application.UseCase[string, *domainOrder.Order]
	ListOrders    application.UseCase[domainOrder.Filter, []*domainOrder.Order]
	ListInventory application.UseCase[struct{}, []domainInventory.Record]
}

func NewUseCases(o *appOrder.Orchestrator) UseCases {
	return UseCases{
		CreateOrder: application.Func[appOrder.CreateOrderInput, *domainOrder.Order](o.CreateOrder),
		UpdateStatus: application.Func[appOrder.UpdateStatusInput, *domainOrder.Order](
			func(ctx context.Context, in appOrder.UpdateStatusInput) (*domainOrder.Order, error) {
				return o.UpdateStatus(ctx, in.OrderID, in.Status, in.Reason)
			}),
		CancelOrder: application.Func[appOrder.CancelOrderInput, *domainOrder.Order](
			func(ctx context.Context, in appOrder.CancelOrderInput) (*domainOrder.Order, error) {
				return o.CancelOrder(ctx, in.OrderID, in.Reason)
			}),
		GetOrder:   application.Func[string, *domainOrder.Order](o.GetOrder),
		ListOrders: application.Func[domainOrder.Filter, []*domainOrder.Order](o.ListOrders),
		ListInventory: application.Func[struct{}, []domainInventory.Record](
			func(ctx context.Context, _ struct{}) ([]domainInventory.Record, error) {
				return o.ListInventory(ctx)
			}),
	}
}

type Handler struct {
	uc      UseCases
	metrics http.Handler
	log     observability.Logger

	reqCounter   observability.Counter   // http_requests_total{method,route,status}
	durHistogram observability.Histogram // http_request_duration_seconds{method,route,status}
}

// NewHandler wires the routes. metrics may be nil to leave /metrics unrouted.
func NewHandler(uc UseCases, metrics http.Handler, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		uc:           uc,
		metrics:      metrics,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		reqCounter:   tel.Metrics().Counter(observability.MHTTPRequests),
		durHistogram: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Trace → Request Logger → Metrics → Access Log → Handler
	h.handle(r, http.MethodPost, "/orders", h.handleCreateOrder)
	h.handle(r, http.MethodGet, "/orders", h.handleListOrders)
	h.handle(r, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.handle(r, http.MethodPatch, "/orders/{id}/status", h.handleUpdateStatus)
	h.handle(r, http.MethodPost, "/orders/{id}/cancel", h.handleCancelOrder)
	h.handle(r, http.MethodGet, "/inventory", h.handleListInventory)
	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

func (h *Handler) handle(r chi.Router, method, route string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
		)(
			h.withHTTPMetrics(
				h.withAccessLog(handler),
			),
		),
	)
	r.Method(method, route, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

type lineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	UserID          string              `json:"user_id"`
	Items           []lineRequest       `json:"items"`
	ShippingAddress domainOrder.Address `json:"shipping_address"`
	PaymentProvider string              `json:"payment_provider"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lines := make([]appOrder.LineInput, len(req.Items))
	for i, it := range req.Items {
		lines[i] = appOrder.LineInput{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	order, err := h.uc.CreateOrder.Execute(r.Context(), appOrder.CreateOrderInput{
		UserID:          req.UserID,
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		Provider:        req.PaymentProvider,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// A cancelled saga is still a completed request; the body carries the outcome.
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.uc.ListOrders.Execute(r.Context(), domainOrder.Filter{
		Status: domainOrder.Status(q.Get("status")),
		UserID: q.Get("user_id"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out, "count": len(out)})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.uc.GetOrder.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := h.uc.UpdateStatus.Execute(r.Context(), appOrder.UpdateStatusInput{
		OrderID: chi.URLParam(r, "id"),
		Status:  req.Status,
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	order, err := h.uc.CancelOrder.Execute(r.Context(), appOrder.CancelOrderInput{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleListInventory(w http.ResponseWriter, r *http.Request) {
	records, err := h.uc.ListInventory.Execute(r.Context(), struct{}{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": records})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type orderResponse struct {
	*domainOrder.Order
	NeedsReconciliation bool `json:"needs_reconciliation"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	return orderResponse{Order: o, NeedsReconciliation: o.NeedsReconciliation()}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appOrder.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, appOrder.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, appOrder.ErrDomainState), errors.Is(err, appOrder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error", observability.F("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
