package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
)

// AdminHandler serves category maintenance under /admin.
type AdminHandler struct {
	Catalog *services.CatalogService
}

// GET /admin/categories
func (h *AdminHandler) Categories(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext(), true)
	if err != nil {
		return fail(c, err)
	}
	return page(c, cats, domain.NewPage(1, len(cats), len(cats)))
}

// PATCH /admin/categories/:id
func (h *AdminHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var body struct {
		BasePricePerUnit *decimal.Decimal `json:"base_price_per_unit"`
		Active           *bool            `json:"active"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	if body.BasePricePerUnit == nil && body.Active == nil {
		return fail(c, domain.Errf(domain.KindValidation, "nothing to update"))
	}

	var cat domain.WasteCategory
	if body.BasePricePerUnit != nil {
		if cat, err = h.Catalog.SetPrice(c.UserContext(), caller(c), id, *body.BasePricePerUnit); err != nil {
			return fail(c, err)
		}
	}
	if body.Active != nil {
		if cat, err = h.Catalog.SetActive(c.UserContext(), caller(c), id, *body.Active); err != nil {
			return fail(c, err)
		}
	}
	applog.Audit(c, "admin.category.update", map[string]any{
		"category_id": id,
		"price":       cat.BasePricePerUnit.String(),
		"active":      cat.Active,
	})
	return c.JSON(cat)
}
