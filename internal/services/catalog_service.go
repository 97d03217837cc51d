package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	"ecocycle/internal/repos"
)

// CatalogService exposes the waste category table. Price edits only apply to
// pickups created afterwards; items keep the price they were created with.
type CatalogService struct {
	Cats *repos.CategoryRepo
}

func NewCatalogService(cats *repos.CategoryRepo) *CatalogService {
	return &CatalogService{Cats: cats}
}

func (s *CatalogService) ListCategories(ctx context.Context, includeInactive bool) ([]domain.WasteCategory, error) {
	return s.Cats.List(ctx, !includeInactive)
}

func (s *CatalogService) SetPrice(ctx context.Context, admin *domain.User, id string, price decimal.Decimal) (domain.WasteCategory, error) {
	if admin.Role != domain.RoleAdmin {
		return domain.WasteCategory{}, domain.Errf(domain.KindForbidden, "admin only")
	}
	if price.IsNegative() {
		return domain.WasteCategory{}, domain.Errf(domain.KindValidation, "base_price_per_unit must not be negative")
	}
	ok, err := s.Cats.SetPrice(ctx, id, price)
	if err != nil {
		return domain.WasteCategory{}, fmt.Errorf("set category price: %w", err)
	}
	if !ok {
		return domain.WasteCategory{}, domain.Errf(domain.KindNotFound, "category %s not found", id)
	}
	c, err := s.Cats.Get(ctx, id)
	if err != nil {
		return c, lookup(err, "category", id)
	}
	return c, nil
}

func (s *CatalogService) SetActive(ctx context.Context, admin *domain.User, id string, active bool) (domain.WasteCategory, error) {
	if admin.Role != domain.RoleAdmin {
		return domain.WasteCategory{}, domain.Errf(domain.KindForbidden, "admin only")
	}
	ok, err := s.Cats.SetActive(ctx, id, active)
	if err != nil {
		return domain.WasteCategory{}, fmt.Errorf("set category active: %w", err)
	}
	if !ok {
		return domain.WasteCategory{}, domain.Errf(domain.KindNotFound, "category %s not found", id)
	}
	c, err := s.Cats.Get(ctx, id)
	if err != nil {
		return c, lookup(err, "category", id)
	}
	return c, nil
}
