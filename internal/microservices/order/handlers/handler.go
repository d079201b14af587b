package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/microservices/order/service"
)

type Handler struct {
	OrderHandler *OrderHandler
	secret       []byte
	log          *logger.Logger
	health       func(ctx context.Context) error
}

// New wires the order handlers; health reports readiness of the backing stores.
func New(s *service.Service, secret []byte, log *logger.Logger, health func(ctx context.Context) error) *Handler {
	return &Handler{
		OrderHandler: NewOrderHandler(s.OrderService, log),
		secret:       secret,
		log:          log,
		health:       health,
	}
}

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(Authenticate(h.secret))
		h.OrderHandler.RegisterRoutes(r)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Error("health_check_failed", err, nil)
			writeProblem(w, http.StatusServiceUnavailable, "unavailable", err.Error(), "")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
