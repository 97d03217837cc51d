package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
)

type PointsHandler struct {
	Points *services.PointsService
}

// GET /points/balance
func (h *PointsHandler) Balance(c *fiber.Ctx) error {
	bal, err := h.Points.Balance(c.UserContext(), caller(c).ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"points": bal})
}

// GET /points/history
func (h *PointsHandler) History(c *fiber.Ctx) error {
	p, l := paging(c)
	rows, pg, err := h.Points.History(c.UserContext(), caller(c).ID, p, l)
	if err != nil {
		return fail(c, err)
	}
	return page(c, rows, pg)
}

// GET /rewards
func (h *PointsHandler) Rewards(c *fiber.Ctx) error {
	rs := h.Points.Rewards()
	return page(c, rs, domain.NewPage(1, len(rs), len(rs)))
}

// POST /rewards/:id/redeem
func (h *PointsHandler) Redeem(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.Points.Redeem(c.UserContext(), caller(c), id)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "reward.redeem", map[string]any{
		"reward_id": id,
		"points":    res.Reward.RequiredPoints,
		"balance":   res.Balance,
	})
	return c.JSON(res)
}
