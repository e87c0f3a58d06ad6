package service

import (
	"context"
	"strings"

	"market-escrow-api/internal/model"
	"market-escrow-api/internal/repository"
)

// CatalogService handles category administration and the buyer-facing
// shop listing.
type CatalogService struct {
	repo repository.MarketRepository
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo repository.MarketRepository) *CatalogService {
	if repo == nil {
		return nil
	}
	return &CatalogService{repo: repo}
}

// UpsertCategory creates or replaces a category. Codes are stored
// uppercase; edits affect future orders only.
func (s *CatalogService) UpsertCategory(ctx context.Context, c model.Category) (model.Category, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.ConfirmMinutes <= 0 {
		c.ConfirmMinutes = 30
	}
	if err := s.repo.UpsertCategory(ctx, c); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	return s.repo.GetCategory(ctx, strings.ToUpper(code))
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *CatalogService) SetPrice(ctx context.Context, code string, priceCents int64) error {
	return s.repo.SetCategoryPrice(ctx, strings.ToUpper(code), priceCents)
}

func (s *CatalogService) SetCapacity(ctx context.Context, code string, capacity int64) error {
	return s.repo.SetCategoryCapacity(ctx, strings.ToUpper(code), capacity)
}

func (s *CatalogService) SetConfirmMinutes(ctx context.Context, code string, minutes int64) error {
	return s.repo.SetCategoryConfirmMinutes(ctx, strings.ToUpper(code), minutes)
}

// ShopEntry is one row of the buyer-facing shop listing.
type ShopEntry struct {
	model.Category
	Available int64 `json:"available"`
}

// ListShop returns all categories with their current unused stock count.
// Capacity stays a display figure; only Available gates purchases.
func (s *CatalogService) ListShop(ctx context.Context) ([]ShopEntry, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ShopEntry, 0, len(categories))
	for _, c := range categories {
		available, err := s.repo.CountAvailableInventory(ctx, c.Code)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ShopEntry{Category: c, Available: available})
	}
	return entries, nil
}
