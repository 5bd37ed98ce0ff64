package transport

import (
	"net/http"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const featuredLimit = 8

// CatalogHandler serves the public catalog
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the catalog routes. None of them need a session.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/categories", h.ListCategories)
	r.Get("/api/categories/{slug}/products", h.ListCategoryProducts)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/featured", h.Featured)
		r.Get("/search", h.Search)
		r.Get("/{slug}", h.GetProduct)
	})
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, "Category listing", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ListProductsByCategory(
		r.Context(),
		chi.URLParam(r, "slug"),
		queryInt(r, "page", 1),
		queryInt(r, "page_size", 0),
	)
	if err != nil {
		respondWithServiceError(w, h.logger, "Category products", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, page)
}

func (h *CatalogHandler) Featured(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.FeaturedProducts(r.Context(), queryInt(r, "limit", featuredLimit))
	if err != nil {
		respondWithServiceError(w, h.logger, "Featured products", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	page, err := h.catalog.SearchProducts(r.Context(), query, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		respondWithServiceError(w, h.logger, "Product search", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, page)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Product lookup", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, detail)
}
