package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps a service error onto an HTTP status and a message that is
// safe to show the customer. Unknown errors become a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict, "product is out of stock or insufficient quantity"
	case errors.Is(err, domain.ErrConcurrentStockConflict):
		return http.StatusConflict, "stock changed while placing the order, please review your cart"
	case errors.Is(err, domain.ErrCartChanged):
		return http.StatusConflict, "your cart changed while the order was being placed, please review it"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid quantity"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, "your cart is empty"
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment failed, please try again"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrSlugTaken), errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "refresh token expired"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid refresh token"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(action+" failed", zap.Error(err))
	} else {
		logger.Debug(action+" rejected", zap.Int("status", status), zap.Error(err))
	}
	middleware.RespondWithError(w, status, message)
}

// callerID is the authenticated user; routes using it sit behind AuthMiddleware
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return n
}
