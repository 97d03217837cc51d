package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	"ecocycle/internal/services"
)

type CategoryHandler struct {
	Catalog *services.CatalogService
}

// GET /categories
func (h *CategoryHandler) List(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext(), false)
	if err != nil {
		return fail(c, err)
	}
	return page(c, cats, domain.NewPage(1, len(cats), len(cats)))
}
