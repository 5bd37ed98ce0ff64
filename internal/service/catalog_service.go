package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
	relatedLimit    = 4
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrSlugTaken    = errors.New("name or slug is already in use")
)

// ProductPage is one page of a product listing
type ProductPage struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// CategoryPage is a category together with a page of its products
type CategoryPage struct {
	Category *domain.Category `json:"category"`
	ProductPage
}

// ProductDetail is a product with a few others from the same category
type ProductDetail struct {
	Product *domain.Product   `json:"product"`
	Related []*domain.Product `json:"related"`
}

// CategoryInput is the admin payload for a new category
type CategoryInput struct {
	Name         string
	Slug         string
	Description  string
	DisplayOrder int
}

// ProductInput is the admin payload for a new product
type ProductInput struct {
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	CategoryID  uuid.UUID
	ImageURL    string
	Stock       int
}

// ProductUpdate carries the fields an admin wants to change; nil means keep
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *uuid.UUID
	ImageURL    *string
	Stock       *int
	IsActive    *bool
}

// CatalogService serves the read-mostly catalog and its admin writes
type CatalogService interface {
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	ListProductsByCategory(ctx context.Context, slug string, page, pageSize int) (*CategoryPage, error)
	GetProduct(ctx context.Context, slug string) (*ProductDetail, error)
	SearchProducts(ctx context.Context, query string, page, pageSize int) (*ProductPage, error)
	FeaturedProducts(ctx context.Context, limit int) ([]*domain.Product, error)

	CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error)
	CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductUpdate) (*domain.Product, error)
}

type catalogService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	cache      cache.CategoryCache
	logger     *zap.Logger
}

// NewCatalogService creates a CatalogService. categoryCache may be nil,
// in which case every call reads the database.
func NewCatalogService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	categoryCache cache.CategoryCache,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categories: categories,
		products:   products,
		cache:      categoryCache,
		logger:     logger,
	}
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	if s.cache != nil {
		cached, err := s.cache.GetActive(ctx)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Category cache read failed", zap.Error(err))
		}
	}

	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetActive(ctx, categories); err != nil {
			s.logger.Warn("Category cache write failed", zap.Error(err))
		}
	}

	return categories, nil
}

func (s *catalogService) ListProductsByCategory(ctx context.Context, slug string, page, pageSize int) (*CategoryPage, error) {
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, fmt.Errorf("category %q: %w", slug, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load category: %w", err)
	}

	page, pageSize = normalizePage(page, pageSize)
	products, total, err := s.products.ListActive(ctx, &category.ID, page, pageSize, "name", repository.SortOrderAsc)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return &CategoryPage{
		Category:    category,
		ProductPage: ProductPage{Products: products, Total: total, Page: page, PageSize: pageSize},
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, slug string) (*ProductDetail, error) {
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %q: %w", slug, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	related, err := s.products.ListRelated(ctx, product, relatedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load related products: %w", err)
	}

	return &ProductDetail{Product: product, Related: related}, nil
}

func (s *catalogService) SearchProducts(ctx context.Context, query string, page, pageSize int) (*ProductPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	products, total, err := s.products.Search(ctx, strings.TrimSpace(query), page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	return &ProductPage{Products: products, Total: total, Page: page, PageSize: pageSize}, nil
}

// FeaturedProducts returns the newest active products
func (s *catalogService) FeaturedProducts(ctx context.Context, limit int) ([]*domain.Product, error) {
	_, limit = normalizePage(1, limit)

	products, _, err := s.products.ListActive(ctx, nil, 1, limit, "created_at", repository.SortOrderDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured products: %w", err)
	}
	return products, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	now := time.Now()
	category := &domain.Category{
		ID:           uuid.New(),
		Name:         name,
		Slug:         slugOr(in.Slug, name),
		Description:  in.Description,
		DisplayOrder: in.DisplayOrder,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.categories.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrCategoryAlreadyExists) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	s.invalidateCategories(ctx)
	s.logger.Info("Category created", zap.String("category_id", category.ID.String()), zap.String("slug", category.Slug))

	return category, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if err := checkPriceAndStock(in.Price, in.Stock); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slugOr(in.Slug, name),
		Description: in.Description,
		Price:       in.Price.Round(2),
		CategoryID:  in.CategoryID,
		ImageURL:    in.ImageURL,
		Stock:       in.Stock,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("slug", product.Slug))
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductUpdate) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
		}
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		product.Description = *in.Description
	}
	if in.Price != nil {
		product.Price = in.Price.Round(2)
	}
	if in.Stock != nil {
		product.Stock = *in.Stock
	}
	if in.ImageURL != nil {
		product.ImageURL = *in.ImageURL
	}
	if in.IsActive != nil {
		product.IsActive = *in.IsActive
	}
	if in.CategoryID != nil && *in.CategoryID != product.CategoryID {
		if err := s.requireCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
		product.CategoryID = *in.CategoryID
	}

	if err := checkPriceAndStock(product.Price, product.Stock); err != nil {
		return nil, err
	}

	if err := s.products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, ErrSlugTaken
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated",
		zap.String("product_id", product.ID.String()),
		zap.String("price", product.Price.StringFixed(2)),
		zap.Int("stock", product.Stock),
		zap.Bool("is_active", product.IsActive),
	)
	return product, nil
}

func (s *catalogService) requireCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.categories.FindByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to load category: %w", err)
	}
	return nil
}

func (s *catalogService) invalidateCategories(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Category cache invalidation failed", zap.Error(err))
	}
}

func checkPriceAndStock(price decimal.Decimal, stock int) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func slugOr(explicit, name string) string {
	if s := Slugify(explicit); s != "" {
		return s
	}
	return Slugify(name)
}

// Slugify lower-cases s and joins its letter and digit runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}
