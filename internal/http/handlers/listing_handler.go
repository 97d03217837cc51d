package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
	applog "ecocycle/internal/log"
	"ecocycle/internal/services"
	"ecocycle/internal/validate"
)

type ListingHandler struct {
	Listings *services.ListingService
}

// GET /listings?category=&condition=&min_price=&max_price=&q=&lat=&lng=&radius_km=&page=&limit=
func (h *ListingHandler) List(c *fiber.Ctx) error {
	q, err := listingQuery(c)
	if err != nil {
		return fail(c, err)
	}
	rows, pg, err := h.Listings.List(c.UserContext(), q)
	if err != nil {
		return fail(c, err)
	}
	return page(c, rows, pg)
}

func listingQuery(c *fiber.Ctx) (services.ListingQuery, error) {
	var q services.ListingQuery
	q.Page, q.Limit = paging(c)

	if v := c.Query("category"); v != "" {
		id, ok := validate.ID(v)
		if !ok {
			return q, domain.Errf(domain.KindValidation, "invalid category")
		}
		q.CategoryID = id
	}
	if v := c.Query("condition"); v != "" {
		cond, ok := validate.Condition(v)
		if !ok {
			return q, domain.Errf(domain.KindValidation, "condition must be one of raw, sorted, processed")
		}
		q.Condition = cond
	}
	if v := c.Query("q"); v != "" {
		s, ok := validate.Q(v)
		if !ok {
			applog.Security(c, "validation.fail", map[string]any{"field": "q"})
			return q, domain.Errf(domain.KindValidation, "invalid search text")
		}
		q.Q = s
	}
	price := func(name string) (*decimal.Decimal, error) {
		v := c.Query(name)
		if v == "" {
			return nil, nil
		}
		d, ok := validate.Decimal(v)
		if !ok {
			return nil, domain.Errf(domain.KindValidation, "%s must be a non-negative number", name)
		}
		return &d, nil
	}
	var err error
	if q.MinPrice, err = price("min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = price("max_price"); err != nil {
		return q, err
	}

	lat, lng := c.Query("lat"), c.Query("lng")
	if lat != "" || lng != "" {
		la, ok1 := validate.Coord(lat, 90)
		ln, ok2 := validate.Coord(lng, 180)
		if !ok1 || !ok2 {
			return q, domain.Errf(domain.KindInvalidCoordinate, "lat/lng out of range")
		}
		q.Near = &geo.Point{Lat: la, Lng: ln}
		q.RadiusKm = 10
		if v := c.Query("radius_km"); v != "" {
			r, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return q, domain.Errf(domain.KindValidation, "radius_km must be a number")
			}
			q.RadiusKm = r
		}
	}
	return q, nil
}

// GET /listings/:id
func (h *ListingHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	l, err := h.Listings.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(l)
}

// POST /listings
func (h *ListingHandler) Create(c *fiber.Ctx) error {
	var in services.ListingInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	l, err := h.Listings.Create(c.UserContext(), caller(c), in)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "listing.create", map[string]any{"listing_id": l.ID, "quantity": l.Quantity.String()})
	return c.Status(fiber.StatusCreated).JSON(l)
}

// PATCH /listings/:id
func (h *ListingHandler) Update(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var p services.ListingPatch
	if err := bind(c, &p); err != nil {
		return fail(c, err)
	}
	l, err := h.Listings.Update(c.UserContext(), caller(c), id, p)
	if err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "listing.update", map[string]any{"listing_id": id})
	return c.JSON(l)
}

// DELETE /listings/:id
func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Listings.Delete(c.UserContext(), caller(c), id); err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "listing.delete", map[string]any{"listing_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
