package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateCategoryRequest represents the admin category payload
type CreateCategoryRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Slug         string `json:"slug" validate:"omitempty,max=100"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order" validate:"gte=0"`
}

// CreateProductRequest represents the admin product payload
type CreateProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Slug        string          `json:"slug" validate:"omitempty,max=200"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	CategoryID  uuid.UUID       `json:"category_id" validate:"required"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

// UpdateProductRequest changes only the fields present in the body
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	CategoryID  *uuid.UUID       `json:"category_id"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	IsActive    *bool            `json:"is_active"`
}

// AdminHandler maintains the catalog
type AdminHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(catalog service.CatalogService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers admin routes behind auth and the admin role check
func (h *AdminHandler) RegisterRoutes(r chi.Router, auth, admin func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth, admin)
		r.Post("/categories", h.CreateCategory)
		r.Post("/products", h.CreateProduct)
		r.Put("/products/{productID}", h.UpdateProduct)
	})
}

func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), service.CategoryInput{
		Name:         req.Name,
		Slug:         req.Slug,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Category creation", err)
		return
	}

	h.logger.Info("Category created", zap.String("category_id", category.ID.String()), zap.String("slug", category.Slug))
	middleware.RespondWithJSON(w, http.StatusCreated, category)
}

func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), service.ProductInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Product creation", err)
		return
	}

	h.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("slug", product.Slug))
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), productID, service.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "Product update", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}
