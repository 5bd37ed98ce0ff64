package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"first_name" validate:"required,max=150"`
	LastName    string `json:"last_name" validate:"required,max=150"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,numeric,min=10,max=15"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh token for refresh and logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse represents the token refresh response
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// UpdateProfileRequest replaces the editable profile fields
type UpdateProfileRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name" validate:"required,max=150"`
	LastName    string `json:"last_name" validate:"required,max=150"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,numeric,min=10,max=15"`
	Address     string `json:"address" validate:"omitempty,max=500"`
	City        string `json:"city" validate:"omitempty,max=100"`
	State       string `json:"state" validate:"omitempty,max=100"`
	PostalCode  string `json:"postal_code" validate:"omitempty,alphanum,max=10"`
}

// UserHandler handles HTTP requests for user accounts
type UserHandler struct {
	users  service.UserService
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/logout", h.Logout)
			r.Get("/profile", h.Profile)
			r.Put("/profile", h.UpdateProfile)
		})
	})
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.Registration{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Registration", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	session, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, h.logger, "Login", err)
		return
	}

	h.logger.Info("User logged in", zap.String("user_id", session.User.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, session)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	if err := h.users.Logout(r.Context(), req.RefreshToken); err != nil {
		respondWithServiceError(w, h.logger, "Logout", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	access, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithServiceError(w, h.logger, "Token refresh", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{AccessToken: access})
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Profile lookup", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, profileOf(user))
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		PostalCode:  req.PostalCode,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Profile update", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, profileOf(user))
}

// UserProfile is the public view of an account
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Role        string `json:"role"`
}

func profileOf(user *domain.User) UserProfile {
	return UserProfile{
		ID:          user.ID.String(),
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		PhoneNumber: user.PhoneNumber,
		Address:     user.Address,
		City:        user.City,
		State:       user.State,
		PostalCode:  user.PostalCode,
		Role:        user.Role,
	}
}
