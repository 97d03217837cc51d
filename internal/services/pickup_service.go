package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/geo"
	"ecocycle/internal/metrics"
	"ecocycle/internal/repos"
)

const (
	// CollectorRadiusKm is how far a collector can see pending pickups.
	CollectorRadiusKm = 5.0
	// PointsPerKg is the earning rate on completed pickups.
	PointsPerKg = 10
)

type PickupService struct {
	Store  *repos.Store
	Events events.Publisher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewPickupService(store *repos.Store, pub events.Publisher, logger *zap.Logger) *PickupService {
	return &PickupService{Store: store, Events: pub, Log: logger}
}

type PickupItemInput struct {
	CategoryID      string          `json:"category_id"`
	EstimatedWeight decimal.Decimal `json:"estimated_weight"`
}

type CreatePickupInput struct {
	Lat         float64           `json:"lat"`
	Lng         float64           `json:"lng"`
	Address     string            `json:"address"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Notes       string            `json:"notes"`
	Items       []PickupItemInput `json:"items"`
}

// Create stores a pending pickup with its items. Each item snapshots the
// category price so later price changes never touch it.
func (s *PickupService) Create(ctx context.Context, owner *domain.User, in CreatePickupInput) (p domain.PickupRequest, err error) {
	ctx, span := startSpan(ctx, "PickupService.Create")
	defer func() { endSpan(span, err) }()

	if owner.Role == domain.RoleCollector {
		return p, domain.Errf(domain.KindForbidden, "collectors cannot request pickups")
	}
	if len(in.Items) == 0 {
		return p, domain.Errf(domain.KindValidation, "at least one item is required")
	}
	for i, it := range in.Items {
		if it.CategoryID == "" {
			return p, domain.Errf(domain.KindValidation, "items[%d].category_id is required", i)
		}
		if !it.EstimatedWeight.IsPositive() {
			return p, domain.Errf(domain.KindValidation, "items[%d].estimated_weight must be greater than 0", i)
		}
	}
	if err := (geo.Point{Lat: in.Lat, Lng: in.Lng}).Validate(); err != nil {
		return p, err
	}
	if in.ScheduledAt.IsZero() {
		return p, domain.Errf(domain.KindValidation, "scheduled_at is required")
	}

	now := repos.FormatTime(clock(s.Now))
	p = domain.PickupRequest{
		ID:          newID(),
		OwnerID:     owner.ID,
		Lat:         in.Lat,
		Lng:         in.Lng,
		Address:     in.Address,
		ScheduledAt: repos.FormatTime(in.ScheduledAt),
		Status:      domain.PickupPending,
		TotalWeight: decimal.Zero,
		TotalPrice:  decimal.Zero,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		ids := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.CategoryID)
		}
		cats, err := tx.Categories.ByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}

		items := make([]domain.PickupItem, 0, len(in.Items))
		for i, it := range in.Items {
			cat, ok := cats[it.CategoryID]
			if !ok || !cat.Active {
				return domain.Errf(domain.KindValidation, "items[%d]: category %q is not active", i, it.CategoryID)
			}
			item := domain.PickupItem{
				ID:              newID(),
				PickupID:        p.ID,
				CategoryID:      cat.ID,
				EstimatedWeight: it.EstimatedWeight,
				PricePerUnit:    cat.BasePricePerUnit,
				Subtotal:        it.EstimatedWeight.Mul(cat.BasePricePerUnit),
			}
			p.TotalWeight = p.TotalWeight.Add(item.EstimatedWeight)
			p.TotalPrice = p.TotalPrice.Add(item.Subtotal)
			items = append(items, item)
		}

		if err := tx.Pickups.Create(ctx, &p); err != nil {
			return fmt.Errorf("insert pickup: %w", err)
		}
		for i := range items {
			if err := tx.Pickups.CreateItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("insert pickup item: %w", err)
			}
		}
		p.Items = items
		return nil
	})
	if err != nil {
		return domain.PickupRequest{}, err
	}
	metrics.PickupTransitions.WithLabelValues(domain.PickupPending).Inc()
	return p, nil
}

type NearbyPickup struct {
	domain.PickupRequest
	DistanceKm float64 `json:"distance_km"`
}

type locatedPickup struct{ domain.PickupRequest }

func (p locatedPickup) Position() geo.Point { return geo.Point{Lat: p.Lat, Lng: p.Lng} }

// ListAvailableFor returns pending pickups within CollectorRadiusKm of the
// collector, nearest first.
func (s *PickupService) ListAvailableFor(ctx context.Context, collector *domain.User, page, limit int) (out []NearbyPickup, pg domain.Page, err error) {
	ctx, span := startSpan(ctx, "PickupService.ListAvailableFor")
	defer func() { endSpan(span, err) }()

	if collector.Role != domain.RoleCollector {
		return nil, pg, domain.Errf(domain.KindForbidden, "only collectors can browse pending pickups")
	}
	// the stored location is authoritative, not the token's snapshot
	u, err := s.Store.Users.ByID(ctx, collector.ID)
	if err != nil {
		return nil, pg, lookup(err, "user", collector.ID)
	}
	lat, lng, ok := u.Location()
	if !ok {
		return nil, pg, domain.Errf(domain.KindLocationRequired, "register your location before browsing pickups")
	}
	origin := geo.Point{Lat: lat, Lng: lng}
	box, err := geo.BoundingBox(origin, CollectorRadiusKm)
	if err != nil {
		return nil, pg, err
	}
	pending, err := s.Store.Pickups.PendingInBox(ctx, box)
	if err != nil {
		return nil, pg, fmt.Errorf("load pending pickups: %w", err)
	}
	cands := make([]locatedPickup, len(pending))
	for i, p := range pending {
		cands[i] = locatedPickup{p}
	}
	matches, err := geo.FindWithinRadius(origin, CollectorRadiusKm, cands)
	if err != nil {
		return nil, pg, err
	}

	page, limit = normalizePage(page, limit)
	start, end := pageBounds(page, limit, len(matches))
	out = make([]NearbyPickup, 0, end-start)
	for _, m := range matches[start:end] {
		p := m.Item.PickupRequest
		if p.Items, err = s.Store.Pickups.Items(ctx, p.ID); err != nil {
			return nil, pg, fmt.Errorf("load pickup items: %w", err)
		}
		out = append(out, NearbyPickup{PickupRequest: p, DistanceKm: m.DistanceKm})
	}
	span.SetAttributes(attribute.Int("pickups.count", len(matches)))
	return out, domain.NewPage(page, limit, len(matches)), nil
}

// Accept assigns the collector with one conditional write; when two
// collectors race exactly one of them matches the pending row.
func (s *PickupService) Accept(ctx context.Context, pickupID string, collector *domain.User) (p domain.PickupRequest, err error) {
	ctx, span := startSpan(ctx, "PickupService.Accept", attribute.String("pickup.id", pickupID))
	defer func() { endSpan(span, err) }()

	if collector.Role != domain.RoleCollector {
		return p, domain.Errf(domain.KindForbidden, "only collectors can accept pickups")
	}
	now := repos.FormatTime(clock(s.Now))
	won, err := s.Store.Pickups.Assign(ctx, pickupID, collector.ID, now)
	if err != nil {
		return p, fmt.Errorf("assign pickup: %w", err)
	}
	p, err = s.Store.Pickups.Get(ctx, pickupID)
	if err != nil {
		return p, lookup(err, "pickup", pickupID)
	}
	if !won {
		if p.CollectorID != nil && *p.CollectorID != collector.ID {
			metrics.AcceptRaceLost.Inc()
			return domain.PickupRequest{}, domain.Errf(domain.KindAlreadyTaken, "pickup %s was already accepted by another collector", pickupID)
		}
		return domain.PickupRequest{}, domain.Errf(domain.KindNotFound, "pickup %s is not pending", pickupID)
	}

	metrics.PickupTransitions.WithLabelValues(domain.PickupAccepted).Inc()
	publish(ctx, s.Events, s.Log, events.New(events.PickupAccepted, p.ID, map[string]any{
		"owner_id":     p.OwnerID,
		"collector_id": collector.ID,
	}))
	return p, nil
}

// advanceFrom lists, per target status, the states a collector may move from.
var advanceFrom = map[string][]string{
	domain.PickupOnTheWay: {domain.PickupAccepted},
	domain.PickupPickedUp: {domain.PickupAccepted, domain.PickupOnTheWay},
}

func (s *PickupService) AdvanceStatus(ctx context.Context, pickupID string, collector *domain.User, newStatus string) (p domain.PickupRequest, err error) {
	ctx, span := startSpan(ctx, "PickupService.AdvanceStatus",
		attribute.String("pickup.id", pickupID), attribute.String("pickup.to", newStatus))
	defer func() { endSpan(span, err) }()

	from, ok := advanceFrom[newStatus]
	if !ok {
		return p, domain.Errf(domain.KindInvalidTransition, "collectors cannot set status %q", newStatus)
	}
	p, err = s.Store.Pickups.Get(ctx, pickupID)
	if err != nil {
		return p, lookup(err, "pickup", pickupID)
	}
	if p.CollectorID == nil || *p.CollectorID != collector.ID {
		return domain.PickupRequest{}, domain.Errf(domain.KindForbidden, "pickup %s is not assigned to you", pickupID)
	}
	now := repos.FormatTime(clock(s.Now))
	moved, err := s.Store.Pickups.Advance(ctx, pickupID, collector.ID, from, newStatus, now)
	if err != nil {
		return domain.PickupRequest{}, fmt.Errorf("advance pickup: %w", err)
	}
	if !moved {
		return domain.PickupRequest{}, domain.Errf(domain.KindInvalidTransition, "cannot move pickup from %s to %s", p.Status, newStatus)
	}
	p.Status = newStatus
	p.UpdatedAt = now
	metrics.PickupTransitions.WithLabelValues(newStatus).Inc()
	return p, nil
}

type WeightInput struct {
	ItemID       string          `json:"id"`
	ActualWeight decimal.Decimal `json:"actual_weight"`
	PhotoURL     *string         `json:"photo_url,omitempty"`
}

type ConfirmResult struct {
	Pickup        domain.PickupRequest `json:"pickup"`
	PointsAwarded int64                `json:"points_awarded"`
}

// ConfirmWeights finalizes a picked-up pickup. Item weights, the completed
// status, the owner's points and both audit transactions commit together.
func (s *PickupService) ConfirmWeights(ctx context.Context, pickupID string, collector *domain.User, items []WeightInput) (res ConfirmResult, err error) {
	ctx, span := startSpan(ctx, "PickupService.ConfirmWeights", attribute.String("pickup.id", pickupID))
	defer func() { endSpan(span, err) }()

	if len(items) == 0 {
		return res, domain.Errf(domain.KindValidation, "at least one item weight is required")
	}
	seen := map[string]bool{}
	for i, it := range items {
		if it.ItemID == "" {
			return res, domain.Errf(domain.KindValidation, "items[%d].id is required", i)
		}
		if seen[it.ItemID] {
			return res, domain.Errf(domain.KindValidation, "item %s submitted twice", it.ItemID)
		}
		seen[it.ItemID] = true
		if it.ActualWeight.IsNegative() {
			return res, domain.Errf(domain.KindValidation, "items[%d].actual_weight must not be negative", i)
		}
	}

	now := repos.FormatTime(clock(s.Now))
	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		p, err := tx.Pickups.Get(ctx, pickupID)
		if err != nil {
			return lookup(err, "pickup", pickupID)
		}
		if p.CollectorID == nil || *p.CollectorID != collector.ID {
			return domain.Errf(domain.KindForbidden, "pickup %s is not assigned to you", pickupID)
		}
		if p.Status != domain.PickupPickedUp {
			return domain.Errf(domain.KindInvalidTransition, "weights can only be confirmed after pickup (status is %s)", p.Status)
		}
		stored, err := tx.Pickups.Items(ctx, pickupID)
		if err != nil {
			return fmt.Errorf("load pickup items: %w", err)
		}
		byID := make(map[string]domain.PickupItem, len(stored))
		for _, it := range stored {
			byID[it.ID] = it
		}

		totalWeight, totalPrice := decimal.Zero, decimal.Zero
		for _, in := range items {
			it, ok := byID[in.ItemID]
			if !ok {
				return domain.Errf(domain.KindItemNotFound, "item %s does not belong to pickup %s", in.ItemID, pickupID)
			}
			subtotal := in.ActualWeight.Mul(it.PricePerUnit)
			if _, err := tx.Pickups.ConfirmItem(ctx, pickupID, it.ID, in.ActualWeight, subtotal, in.PhotoURL); err != nil {
				return fmt.Errorf("confirm item: %w", err)
			}
			totalWeight = totalWeight.Add(in.ActualWeight)
			totalPrice = totalPrice.Add(subtotal)
		}

		done, err := tx.Pickups.Complete(ctx, pickupID, collector.ID, totalWeight, totalPrice, now)
		if err != nil {
			return fmt.Errorf("complete pickup: %w", err)
		}
		if !done {
			return domain.Errf(domain.KindInvalidTransition, "pickup %s changed state during confirmation", pickupID)
		}

		points := totalWeight.Mul(decimal.NewFromInt(PointsPerKg)).Floor().IntPart()
		desc := fmt.Sprintf("Pickup %s: %s kg collected", pickupID, totalWeight.String())
		if err := creditPoints(ctx, tx, p.OwnerID, points, desc, pickupID, now); err != nil {
			return err
		}
		if err := tx.Points.Record(ctx, &domain.Transaction{
			ID: newID(), UserID: p.OwnerID, Type: domain.TxPickup, ReferenceID: pickupID,
			Amount: totalPrice, PointsEarned: points, Description: desc, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("record owner transaction: %w", err)
		}
		if err := tx.Points.Record(ctx, &domain.Transaction{
			ID: newID(), UserID: collector.ID, Type: domain.TxPickup, ReferenceID: pickupID,
			Amount: totalPrice, PointsEarned: 0, Description: desc, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("record collector transaction: %w", err)
		}

		p.Status = domain.PickupCompleted
		p.TotalWeight = totalWeight
		p.TotalPrice = totalPrice
		p.UpdatedAt = now
		if p.Items, err = tx.Pickups.Items(ctx, pickupID); err != nil {
			return fmt.Errorf("reload pickup items: %w", err)
		}
		res = ConfirmResult{Pickup: p, PointsAwarded: points}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	metrics.PickupTransitions.WithLabelValues(domain.PickupCompleted).Inc()
	metrics.PointsAwarded.Add(float64(res.PointsAwarded))
	publish(ctx, s.Events, s.Log, events.New(events.PickupCompleted, pickupID, map[string]any{
		"owner_id":       res.Pickup.OwnerID,
		"collector_id":   collector.ID,
		"total_weight":   res.Pickup.TotalWeight.String(),
		"total_price":    res.Pickup.TotalPrice.String(),
		"points_awarded": res.PointsAwarded,
	}))
	return res, nil
}

// Cancel is open to the owner while the pickup is still pending.
func (s *PickupService) Cancel(ctx context.Context, pickupID string, owner *domain.User) (p domain.PickupRequest, err error) {
	ctx, span := startSpan(ctx, "PickupService.Cancel", attribute.String("pickup.id", pickupID))
	defer func() { endSpan(span, err) }()

	p, err = s.Store.Pickups.Get(ctx, pickupID)
	if err != nil {
		return p, lookup(err, "pickup", pickupID)
	}
	if p.OwnerID != owner.ID {
		return domain.PickupRequest{}, domain.Errf(domain.KindForbidden, "only the owner can cancel pickup %s", pickupID)
	}
	now := repos.FormatTime(clock(s.Now))
	ok, err := s.Store.Pickups.CancelPending(ctx, pickupID, owner.ID, now)
	if err != nil {
		return domain.PickupRequest{}, fmt.Errorf("cancel pickup: %w", err)
	}
	if !ok {
		return domain.PickupRequest{}, domain.Errf(domain.KindInvalidTransition, "pickup can only be cancelled while pending (status is %s)", p.Status)
	}
	p.Status = domain.PickupCancelled
	p.UpdatedAt = now
	metrics.PickupTransitions.WithLabelValues(domain.PickupCancelled).Inc()
	publish(ctx, s.Events, s.Log, events.New(events.PickupCancelled, pickupID, map[string]any{"owner_id": owner.ID}))
	return p, nil
}

// Get returns a pickup with items to its owner, its collector or an admin.
func (s *PickupService) Get(ctx context.Context, pickupID string, caller *domain.User) (p domain.PickupRequest, err error) {
	p, err = s.Store.Pickups.Get(ctx, pickupID)
	if err != nil {
		return p, lookup(err, "pickup", pickupID)
	}
	visible := caller.Role == domain.RoleAdmin || p.OwnerID == caller.ID ||
		(p.CollectorID != nil && *p.CollectorID == caller.ID)
	if !visible {
		return domain.PickupRequest{}, domain.Errf(domain.KindNotFound, "pickup %s not found", pickupID)
	}
	if p.Items, err = s.Store.Pickups.Items(ctx, pickupID); err != nil {
		return domain.PickupRequest{}, fmt.Errorf("load pickup items: %w", err)
	}
	return p, nil
}

// List pages through the caller's pickups: owned for customers, assigned
// for collectors, everything for admins.
func (s *PickupService) List(ctx context.Context, caller *domain.User, status string, page, limit int) ([]domain.PickupRequest, domain.Page, error) {
	page, limit = normalizePage(page, limit)
	f := repos.PickupFilter{Status: status}
	switch caller.Role {
	case domain.RoleCollector:
		f.CollectorID = caller.ID
	case domain.RoleAdmin:
	default:
		f.OwnerID = caller.ID
	}
	rows, total, err := s.Store.Pickups.List(ctx, f, page, limit)
	if err != nil {
		return nil, domain.Page{}, fmt.Errorf("list pickups: %w", err)
	}
	return rows, domain.NewPage(page, limit, total), nil
}
