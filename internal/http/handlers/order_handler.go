package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
	"ecocycle/internal/validate"
)

type OrderHandler struct {
	Orders *services.OrderService
}

// POST /orders
func (h *OrderHandler) Place(c *fiber.Ctx) error {
	var in services.PlaceOrderInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if _, ok := validate.ID(in.ListingID); !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "listing_id"})
		return fail(c, domain.Errf(domain.KindValidation, "listing_id is required"))
	}
	o, err := h.Orders.Place(c.UserContext(), caller(c), in)
	if err != nil {
		if domain.IsKind(err, domain.KindOutOfStock) {
			applog.Info(c, "order.place.out_of_stock", map[string]any{"listing_id": in.ListingID, "requested": in.Quantity.String()})
		}
		return fail(c, err)
	}
	applog.Audit(c, "order.place", map[string]any{
		"order_id":    o.ID,
		"listing_id":  o.ListingID,
		"quantity":    o.Quantity.String(),
		"total_price": o.TotalPrice.String(),
	})
	return c.Status(fiber.StatusCreated).JSON(o)
}

// GET /orders?role=buyer|seller&status=
func (h *OrderHandler) List(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" {
		var ok bool
		if status, ok = validate.OrderStatus(status); !ok {
			return fail(c, domain.Errf(domain.KindValidation, "unknown status %q", c.Query("status")))
		}
	}
	p, l := paging(c)
	rows, pg, err := h.Orders.List(c.UserContext(), caller(c), c.Query("role"), status, p, l)
	if err != nil {
		return fail(c, err)
	}
	return page(c, rows, pg)
}

// GET /orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	o, err := h.Orders.Get(c.UserContext(), id, caller(c))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			applog.Security(c, "access.denied.order", map[string]any{"order_id": id})
		}
		return fail(c, err)
	}
	return c.JSON(o)
}

type orderAction func(ctx context.Context, id string, u *domain.User) (domain.Order, error)

// transition serves POST /orders/:id/{confirm,ship,complete,cancel}.
func (h *OrderHandler) transition(action string, fn orderAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return fail(c, err)
		}
		o, err := fn(c.UserContext(), id, caller(c))
		if err != nil {
			return fail(c, err)
		}
		applog.Audit(c, "order."+action, map[string]any{"order_id": id, "status": o.Status})
		return c.JSON(o)
	}
}

func (h *OrderHandler) Confirm() fiber.Handler  { return h.transition("confirm", h.Orders.Confirm) }
func (h *OrderHandler) Ship() fiber.Handler     { return h.transition("ship", h.Orders.Ship) }
func (h *OrderHandler) Complete() fiber.Handler { return h.transition("complete", h.Orders.Complete) }
func (h *OrderHandler) Cancel() fiber.Handler   { return h.transition("cancel", h.Orders.Cancel) }

// POST /orders/:id/review
func (h *OrderHandler) Review(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var body struct {
		Rating int    `json:"rating"`
		Review string `json:"review"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	if !validate.Rating(body.Rating) {
		return fail(c, domain.Errf(domain.KindValidation, "rating must be between 1 and 5"))
	}
	text, ok := validate.Text(body.Review, 1000)
	if !ok {
		return fail(c, domain.Errf(domain.KindValidation, "review must be at most 1000 characters"))
	}
	o, err := h.Orders.Review(c.UserContext(), id, caller(c), body.Rating, text)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "order.review", map[string]any{"order_id": id, "rating": body.Rating})
	return c.JSON(o)
}
