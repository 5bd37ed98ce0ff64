// Package cache keeps read-mostly catalog data in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/redis/go-redis/v9"
)

const activeCategoriesKey = "storefront:categories:active"

// ErrMiss is returned when the key is absent
var ErrMiss = errors.New("cache miss")

// CategoryCache stores the active category list shown on every page
type CategoryCache interface {
	GetActive(ctx context.Context) ([]*domain.Category, error)
	SetActive(ctx context.Context, categories []*domain.Category) error
	Invalidate(ctx context.Context) error
}

type redisCategoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCategoryCache creates a Redis-backed CategoryCache
func NewCategoryCache(client *redis.Client, ttl time.Duration) CategoryCache {
	return &redisCategoryCache{client: client, ttl: ttl}
}

func (c *redisCategoryCache) GetActive(ctx context.Context) ([]*domain.Category, error) {
	data, err := c.client.Get(ctx, activeCategoriesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read categories from cache: %w", err)
	}

	var categories []*domain.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode cached categories: %w", err)
	}
	return categories, nil
}

func (c *redisCategoryCache) SetActive(ctx context.Context, categories []*domain.Category) error {
	data, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	if err := c.client.Set(ctx, activeCategoriesKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache categories: %w", err)
	}
	return nil
}

func (c *redisCategoryCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, activeCategoriesKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate categories: %w", err)
	}
	return nil
}
