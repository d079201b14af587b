package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	dto "restaurant-orders/internal/microservices/order/domain/dto"
	"restaurant-orders/internal/microservices/order/repository"
	"restaurant-orders/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
	log     *logger.Logger
}

func NewOrderHandler(s service.OrderServiceInterface, log *logger.Logger) *OrderHandler {
	return &OrderHandler{service: s, log: log}
}

func (oh *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", oh.CreateOrder)
	r.Post("/submit", oh.SubmitOrder)
	r.Get("/", oh.ListOrders)
	r.Get("/{orderID}", oh.GetOrder)
	r.Get("/{orderID}/audit", oh.ListAudit)
	r.Post("/{orderID}/items", oh.AddItem)
	r.Put("/{orderID}/items", oh.UpdateItems)
	r.Post("/{orderID}/items/{itemID}/cancel", oh.CancelItem)
	r.Patch("/{orderID}/items/{itemID}/status", oh.UpdateItemStatus)
	r.Post("/{orderID}/cancel", oh.CancelOrder)
	r.Post("/{orderID}/complete", oh.CompleteOrder)
}

func (oh *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if !oh.decode(w, r, &req) {
		return
	}
	o, err := oh.service.CreateOrder(r.Context(), req)
	oh.respond(w, r, http.StatusCreated, o, err)
}

func (oh *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitOrderRequest
	if !oh.decode(w, r, &req) {
		return
	}
	o, err := oh.service.SubmitOrder(r.Context(), req)
	oh.respond(w, r, http.StatusCreated, o, err)
}

func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := oh.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.OrderFilter{
		Limit:  atoiDefault(q.Get("limit"), 50),
		Offset: atoiDefault(q.Get("offset"), 0),
	}
	if s := q.Get("status"); s != "" {
		st, ok := domain.ParseOrderStatus(s)
		if !ok {
			writeError(w, domain.Validation("status", domain.CodeInvalid, "unknown order status"))
			return
		}
		f.Status = st
	}
	if s := q.Get("type"); s != "" {
		t, ok := domain.ParseOrderType(s)
		if !ok {
			writeError(w, domain.Validation("type", domain.CodeInvalid, "unknown order type"))
			return
		}
		f.Type = t
	}
	if s := q.Get("table_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, domain.Validation("table_id", domain.CodeInvalid, "not a valid id"))
			return
		}
		f.TableID = &id
	}

	orders, err := oh.service.ListOrders(r.Context(), f)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": dto.FromOrders(orders), "limit": f.PageSize(), "offset": f.Offset})
}

func (oh *OrderHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	entries, err := oh.service.ListAudit(r.Context(), orderID)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "events": dto.FromAudit(entries)})
}

func (oh *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AddItemRequest
	if !oh.decode(w, r, &req) {
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	o, err := oh.service.AddItem(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateItemsRequest
	if !oh.decode(w, r, &req) {
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	o, err := oh.service.UpdateItems(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) CancelItem(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelItemRequest
	if !oh.decode(w, r, &req) {
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	req.ItemID = chi.URLParam(r, "itemID")
	o, err := oh.service.CancelItem(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateItemStatusRequest
	if !oh.decode(w, r, &req) {
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	req.ItemID = chi.URLParam(r, "itemID")
	o, err := oh.service.UpdateItemStatus(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelOrderRequest
	if !oh.decode(w, r, &req) {
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	o, err := oh.service.CancelOrder(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	req := dto.CompleteOrderRequest{OrderID: chi.URLParam(r, "orderID")}
	o, err := oh.service.CompleteOrder(r.Context(), req)
	oh.respond(w, r, http.StatusOK, o, err)
}

func (oh *OrderHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", "")
		return false
	}
	return true
}

func (oh *OrderHandler) respond(w http.ResponseWriter, r *http.Request, code int, o *domain.Order, err error) {
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, code, dto.FromOrder(o))
}

func (oh *OrderHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindConflict {
		oh.log.WithRequest(middleware.GetReqID(r.Context())).Error("request_failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	writeError(w, err)
}
