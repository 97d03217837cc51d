package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
)

type AccountHandler struct {
	Accounts *services.AccountService
}

// GET /me
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	u, err := h.Accounts.Me(c.UserContext(), caller(c).ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(u)
}

// PUT /me/location
func (h *AccountHandler) SetLocation(c *fiber.Ctx) error {
	var body struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	if body.Lat == nil || body.Lng == nil {
		return fail(c, domain.Errf(domain.KindValidation, "lat and lng are required"))
	}
	u, err := h.Accounts.SetLocation(c.UserContext(), caller(c).ID, *body.Lat, *body.Lng)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "account.location", nil)
	return c.JSON(u)
}
