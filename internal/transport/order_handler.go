package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckoutRequest is the checkout form: delivery details plus the card token
// issued by the payment provider's client library. Blank delivery fields are
// taken from the customer's saved profile.
type CheckoutRequest struct {
	Name         string `json:"name" validate:"omitempty,max=200"`
	Phone        string `json:"phone" validate:"omitempty,numeric,min=10,max=15"`
	Address      string `json:"address" validate:"omitempty,max=500"`
	City         string `json:"city" validate:"omitempty,max=100"`
	State        string `json:"state" validate:"omitempty,max=100"`
	PostalCode   string `json:"postal_code" validate:"omitempty,alphanum,max=10"`
	PaymentToken string `json:"payment_token" validate:"required"`
}

// OrderHandler handles checkout and order history
type OrderHandler struct {
	checkout service.CheckoutService
	orders   service.OrderService
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(checkout service.CheckoutService, orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders, logger: logger}
}

// RegisterRoutes registers checkout and order routes. checkoutLimit wraps
// only the checkout endpoint.
func (h *OrderHandler) RegisterRoutes(r chi.Router, auth, checkoutLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.With(checkoutLimit).Post("/api/checkout", h.Checkout)
		r.Get("/api/orders", h.ListOrders)
		r.Get("/api/orders/{orderID}", h.GetOrder)
	})
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), userID, service.CheckoutRequest{
		Delivery: domain.Delivery{
			Name:       req.Name,
			Phone:      req.Phone,
			Address:    req.Address,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
		},
		PaymentToken: req.PaymentToken,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Checkout", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Order listing", err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Order lookup", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
