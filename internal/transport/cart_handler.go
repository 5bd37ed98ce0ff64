package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddItemRequest adds a product to the caller's cart
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=100"`
}

// UpdateItemRequest overwrites the quantity of a cart line
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CartHandler handles HTTP requests for the caller's cart
type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// RegisterRoutes registers the cart routes behind auth
func (h *CartHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(auth)
		r.Get("/", h.GetCart)
		r.Get("/count", h.ItemCount)
		r.Post("/items", h.AddItem)
		r.Put("/items/{itemID}", h.UpdateItem)
		r.Delete("/items/{itemID}", h.RemoveItem)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Cart lookup", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ItemCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	count, err := h.carts.ItemCount(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Cart count", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	item, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, "Add to cart", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	if err := h.carts.UpdateItem(r.Context(), userID, itemID, req.Quantity); err != nil {
		respondWithServiceError(w, h.logger, "Cart update", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(r.Context(), userID, itemID); err != nil {
		respondWithServiceError(w, h.logger, "Cart removal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
