package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"ecocycle/internal/cache"
	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
	"ecocycle/internal/repos"
)

const defaultListingLifetime = 30 * 24 * time.Hour

var listingConditions = map[string]bool{"raw": true, "sorted": true, "processed": true}

// ListingService manages marketplace listings. Quantity changes caused by
// orders go through OrderService; this service only handles seller edits
// and browsing.
type ListingService struct {
	Store *repos.Store
	Cache cache.Listings
	Now   func() time.Time
}

func NewListingService(store *repos.Store, c cache.Listings) *ListingService {
	if c == nil {
		c = cache.Nop{}
	}
	return &ListingService{Store: store, Cache: c}
}

type ListingInput struct {
	CategoryID   string          `json:"category_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Condition    string          `json:"condition"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	ExpiresAt    *time.Time      `json:"expires_at"`
	Lat          *float64        `json:"lat"`
	Lng          *float64        `json:"lng"`
}

func validateListingFields(title, condition string, qty, price decimal.Decimal, expires time.Time, now time.Time) error {
	if strings.TrimSpace(title) == "" {
		return domain.Errf(domain.KindValidation, "title is required")
	}
	if !listingConditions[condition] {
		return domain.Errf(domain.KindValidation, "condition must be one of raw, sorted, processed")
	}
	if !qty.IsPositive() {
		return domain.Errf(domain.KindValidation, "quantity must be greater than 0")
	}
	if price.IsNegative() {
		return domain.Errf(domain.KindValidation, "price_per_unit must not be negative")
	}
	if !expires.After(now) {
		return domain.Errf(domain.KindValidation, "expires_at must be in the future")
	}
	return nil
}

func (s *ListingService) Create(ctx context.Context, seller *domain.User, in ListingInput) (l domain.Listing, err error) {
	ctx, span := startSpan(ctx, "ListingService.Create")
	defer func() { endSpan(span, err) }()

	now := clock(s.Now)
	expires := now.Add(defaultListingLifetime)
	if in.ExpiresAt != nil {
		expires = *in.ExpiresAt
	}
	if in.Condition == "" {
		in.Condition = "raw"
	}
	if err := validateListingFields(in.Title, in.Condition, in.Quantity, in.PricePerUnit, expires, now); err != nil {
		return l, err
	}
	cat, err := s.Store.Categories.Get(ctx, in.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return l, domain.Errf(domain.KindValidation, "category %q does not exist", in.CategoryID)
	}
	if err != nil {
		return l, lookup(err, "category", in.CategoryID)
	}
	if !cat.Active {
		return l, domain.Errf(domain.KindValidation, "category %q is not active", in.CategoryID)
	}

	lat, lng := in.Lat, in.Lng
	if lat == nil || lng == nil {
		lat, lng = seller.Lat, seller.Lng
	}
	if lat != nil && lng != nil {
		if err := (geo.Point{Lat: *lat, Lng: *lng}).Validate(); err != nil {
			return l, err
		}
	}

	ts := repos.FormatTime(now)
	l = domain.Listing{
		ID:           newID(),
		SellerID:     seller.ID,
		CategoryID:   cat.ID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Condition:    in.Condition,
		Quantity:     in.Quantity,
		PricePerUnit: in.PricePerUnit,
		Status:       domain.ListingAvailable,
		Lat:          lat,
		Lng:          lng,
		ExpiresAt:    repos.FormatTime(expires),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.Store.Listings.Create(ctx, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	return l, nil
}

// ListingPatch carries the seller-editable fields; nil leaves a field as is.
type ListingPatch struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Condition    *string          `json:"condition"`
	Quantity     *decimal.Decimal `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
	ExpiresAt    *time.Time       `json:"expires_at"`
}

func (s *ListingService) Update(ctx context.Context, seller *domain.User, id string, p ListingPatch) (l domain.Listing, err error) {
	ctx, span := startSpan(ctx, "ListingService.Update", attribute.String("listing.id", id))
	defer func() { endSpan(span, err) }()

	l, err = s.Store.Listings.Get(ctx, id)
	if err != nil {
		return l, lookup(err, "listing", id)
	}
	if l.SellerID != seller.ID {
		return domain.Listing{}, domain.Errf(domain.KindForbidden, "only the seller can edit listing %s", id)
	}
	if l.Status != domain.ListingAvailable {
		return domain.Listing{}, domain.Errf(domain.KindInvalidTransition, "listing is %s and can no longer be edited", l.Status)
	}

	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Condition != nil {
		l.Condition = *p.Condition
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.PricePerUnit != nil {
		l.PricePerUnit = *p.PricePerUnit
	}
	expires, err := time.Parse(time.RFC3339, l.ExpiresAt)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("parse expires_at: %w", err)
	}
	if p.ExpiresAt != nil {
		expires = *p.ExpiresAt
		l.ExpiresAt = repos.FormatTime(expires)
	}
	now := clock(s.Now)
	if err := validateListingFields(l.Title, l.Condition, l.Quantity, l.PricePerUnit, expires, now); err != nil {
		return domain.Listing{}, err
	}
	l.UpdatedAt = repos.FormatTime(now)

	ok, err := s.Store.Listings.Update(ctx, &l)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("update listing: %w", err)
	}
	if !ok {
		return domain.Listing{}, domain.Errf(domain.KindInvalidTransition, "listing %s changed while editing", id)
	}
	s.Cache.Invalidate(ctx, id)
	return l, nil
}

// Delete removes a listing that no open or finished order refers to.
func (s *ListingService) Delete(ctx context.Context, seller *domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "ListingService.Delete", attribute.String("listing.id", id))
	defer func() { endSpan(span, err) }()

	l, err := s.Store.Listings.Get(ctx, id)
	if err != nil {
		return lookup(err, "listing", id)
	}
	if l.SellerID != seller.ID {
		return domain.Errf(domain.KindForbidden, "only the seller can delete listing %s", id)
	}
	ok, err := s.Store.Listings.Delete(ctx, id, seller.ID, repos.FormatTime(clock(s.Now)))
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if !ok {
		return domain.Errf(domain.KindInvalidTransition, "listing %s has orders and cannot be deleted", id)
	}
	s.Cache.Invalidate(ctx, id)
	return nil
}

// Get is the detail view. It counts one view per call and serves the row
// from the cache when possible; the cached copy carries the count it had
// when it was stored.
func (s *ListingService) Get(ctx context.Context, id string) (l domain.Listing, err error) {
	ctx, span := startSpan(ctx, "ListingService.Get", attribute.String("listing.id", id))
	defer func() { endSpan(span, err) }()

	if err := s.Store.Listings.IncrementViews(ctx, id); err != nil {
		return l, fmt.Errorf("count view: %w", err)
	}
	if cached, ok := s.Cache.Get(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	l, err = s.Store.Listings.Get(ctx, id)
	if err != nil {
		return l, lookup(err, "listing", id)
	}
	s.Cache.Set(ctx, l)
	return l, nil
}

// ListingQuery holds the browse filters. Near and RadiusKm enable the geo
// filter together.
type ListingQuery struct {
	CategoryID string
	Condition  string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Q          string
	SellerID   string
	Near       *geo.Point
	RadiusKm   float64
	Page       int
	Limit      int
}

type ListingResult struct {
	domain.Listing
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type locatedListing struct{ domain.Listing }

func (l locatedListing) Position() geo.Point {
	if l.Lat == nil || l.Lng == nil {
		// outside the valid range, so the matcher skips it
		return geo.Point{Lat: 999, Lng: 999}
	}
	return geo.Point{Lat: *l.Lat, Lng: *l.Lng}
}

// List returns available, unexpired listings. Browsing never changes
// views_count.
func (s *ListingService) List(ctx context.Context, q ListingQuery) (out []ListingResult, pg domain.Page, err error) {
	ctx, span := startSpan(ctx, "ListingService.List")
	defer func() { endSpan(span, err) }()

	page, limit := normalizePage(q.Page, q.Limit)
	if q.Condition != "" && !listingConditions[q.Condition] {
		return nil, pg, domain.Errf(domain.KindValidation, "condition must be one of raw, sorted, processed")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, pg, domain.Errf(domain.KindValidation, "min_price must not exceed max_price")
	}
	f := repos.ListingFilter{
		CategoryID: q.CategoryID,
		Condition:  q.Condition,
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
		Q:          strings.TrimSpace(q.Q),
		SellerID:   q.SellerID,
	}
	now := repos.FormatTime(clock(s.Now))

	if q.Near == nil {
		rows, total, err := s.Store.Listings.List(ctx, f, now, page, limit)
		if err != nil {
			return nil, pg, fmt.Errorf("list listings: %w", err)
		}
		out = make([]ListingResult, len(rows))
		for i, l := range rows {
			out[i] = ListingResult{Listing: l}
		}
		return out, domain.NewPage(page, limit, total), nil
	}

	if q.RadiusKm <= 0 {
		return nil, pg, domain.Errf(domain.KindValidation, "radius_km must be greater than 0")
	}
	box, err := geo.BoundingBox(*q.Near, q.RadiusKm)
	if err != nil {
		return nil, pg, err
	}
	f.Box = &box
	rows, err := s.Store.Listings.All(ctx, f, now)
	if err != nil {
		return nil, pg, fmt.Errorf("list listings: %w", err)
	}
	cands := make([]locatedListing, len(rows))
	for i, l := range rows {
		cands[i] = locatedListing{l}
	}
	matches, err := geo.FindWithinRadius(*q.Near, q.RadiusKm, cands)
	if err != nil {
		return nil, pg, err
	}
	total := len(matches)
	start, end := pageBounds(page, limit, total)
	out = make([]ListingResult, 0, end-start)
	for _, m := range matches[start:end] {
		d := m.DistanceKm
		out = append(out, ListingResult{Listing: m.Item.Listing, DistanceKm: &d})
	}
	return out, domain.NewPage(page, limit, total), nil
}
