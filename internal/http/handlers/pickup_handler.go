package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
	"ecocycle/internal/validate"
)

type PickupHandler struct {
	Pickups *services.PickupService
}

// POST /pickups
func (h *PickupHandler) Create(c *fiber.Ctx) error {
	var in services.CreatePickupInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	p, err := h.Pickups.Create(c.UserContext(), caller(c), in)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "pickup.create", map[string]any{"pickup_id": p.ID, "items": len(p.Items), "total_price": p.TotalPrice.String()})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// GET /pickups/available?page=&limit=
func (h *PickupHandler) Available(c *fiber.Ctx) error {
	p, l := paging(c)
	rows, pg, err := h.Pickups.ListAvailableFor(c.UserContext(), caller(c), p, l)
	if err != nil {
		return fail(c, err)
	}
	return page(c, rows, pg)
}

// GET /pickups
func (h *PickupHandler) List(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" {
		var ok bool
		if status, ok = validate.PickupStatus(status); !ok {
			return fail(c, domain.Errf(domain.KindValidation, "unknown status %q", c.Query("status")))
		}
	}
	p, l := paging(c)
	rows, pg, err := h.Pickups.List(c.UserContext(), caller(c), status, p, l)
	if err != nil {
		return fail(c, err)
	}
	return page(c, rows, pg)
}

// GET /pickups/:id
func (h *PickupHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Pickups.Get(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

// POST /pickups/:id/accept
func (h *PickupHandler) Accept(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Pickups.Accept(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "pickup.accept", map[string]any{"pickup_id": id})
	return c.JSON(p)
}

// PATCH /pickups/:id/status
func (h *PickupHandler) Advance(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	p, err := h.Pickups.AdvanceStatus(c.UserContext(), id, caller(c), body.Status)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "pickup.status", map[string]any{"pickup_id": id, "status": p.Status})
	return c.JSON(p)
}

// POST /pickups/:id/confirm-weight
func (h *PickupHandler) ConfirmWeight(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var body struct {
		Items []services.WeightInput `json:"items"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Pickups.ConfirmWeights(c.UserContext(), id, caller(c), body.Items)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "pickup.complete", map[string]any{
		"pickup_id":    id,
		"total_weight": res.Pickup.TotalWeight.String(),
		"points":       res.PointsAwarded,
	})
	return c.JSON(res)
}

// POST /pickups/:id/cancel
func (h *PickupHandler) Cancel(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Pickups.Cancel(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "pickup.cancel", map[string]any{"pickup_id": id})
	return c.JSON(p)
}
