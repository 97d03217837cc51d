package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"ecocycle/internal/cache"
	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/metrics"
	"ecocycle/internal/repos"
)

type OrderService struct {
	Store  *repos.Store
	Cache  cache.Listings
	Events events.Publisher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewOrderService(store *repos.Store, c cache.Listings, pub events.Publisher, logger *zap.Logger) *OrderService {
	if c == nil {
		c = cache.Nop{}
	}
	return &OrderService{Store: store, Cache: c, Events: pub, Log: logger}
}

type PlaceOrderInput struct {
	ListingID       string          `json:"listing_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ShippingAddress string          `json:"shipping_address"`
	Notes           string          `json:"notes"`
}

// Place creates a pending order and takes its quantity off the listing in
// one transaction. The decrement is a guarded write, so concurrent buyers
// can never oversell.
func (s *OrderService) Place(ctx context.Context, buyer *domain.User, in PlaceOrderInput) (o domain.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.Place", attribute.String("listing.id", in.ListingID))
	defer func() { endSpan(span, err) }()

	if in.ListingID == "" {
		return o, domain.Errf(domain.KindValidation, "listing_id is required")
	}
	if !in.Quantity.IsPositive() {
		return o, domain.Errf(domain.KindValidation, "quantity must be greater than 0")
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return o, domain.Errf(domain.KindValidation, "shipping_address is required")
	}

	now := clock(s.Now)
	ts := repos.FormatTime(now)
	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		l, err := tx.Listings.Get(ctx, in.ListingID)
		if err != nil {
			return lookup(err, "listing", in.ListingID)
		}
		if l.SellerID == buyer.ID {
			return domain.Errf(domain.KindForbidden, "you cannot order your own listing")
		}
		switch {
		case l.Status == domain.ListingSold:
			return domain.Errf(domain.KindInvalidTransition, "listing %s is sold", l.ID)
		case l.ExpiresAt <= ts:
			return domain.Errf(domain.KindInvalidTransition, "listing %s has expired", l.ID)
		}

		reserved, err := tx.Listings.Reserve(ctx, l.ID, in.Quantity, ts)
		if err != nil {
			return fmt.Errorf("reserve quantity: %w", err)
		}
		if !reserved {
			// reread inside the tx so the message reports what is really left
			if cur, err := tx.Listings.Get(ctx, l.ID); err == nil {
				l = cur
			}
			available := l.Quantity
			if l.Status != domain.ListingAvailable {
				available = decimal.Zero
			}
			metrics.OutOfStock.Inc()
			return domain.Errf(domain.KindOutOfStock, "only %s available", available.String()).
				With("available", available.String()).
				With("requested", in.Quantity.String())
		}

		o = domain.Order{
			ID:              newID(),
			ListingID:       l.ID,
			BuyerID:         buyer.ID,
			SellerID:        l.SellerID,
			Quantity:        in.Quantity,
			TotalPrice:      in.Quantity.Mul(l.PricePerUnit),
			Status:          domain.OrderPending,
			PaymentStatus:   domain.PaymentUnpaid,
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			Notes:           in.Notes,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if err := tx.Orders.Create(ctx, &o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.Cache.Invalidate(ctx, o.ListingID)
	metrics.OrderTransitions.WithLabelValues(domain.OrderPending).Inc()
	publish(ctx, s.Events, s.Log, events.New(events.OrderPlaced, o.ID, map[string]any{
		"listing_id":  o.ListingID,
		"buyer_id":    o.BuyerID,
		"seller_id":   o.SellerID,
		"quantity":    o.Quantity.String(),
		"total_price": o.TotalPrice.String(),
	}))
	return o, nil
}

// step describes one seller- or buyer-driven move along the order chain.
type step struct {
	from    string
	to      string
	payment string
	event   string
	byBuyer bool
}

var (
	confirmStep  = step{from: domain.OrderPending, to: domain.OrderConfirmed, event: events.OrderConfirmed}
	shipStep     = step{from: domain.OrderConfirmed, to: domain.OrderShipped, event: events.OrderShipped}
	completeStep = step{from: domain.OrderShipped, to: domain.OrderCompleted, payment: domain.PaymentPaid, event: events.OrderCompleted, byBuyer: true}
)

func (s *OrderService) Confirm(ctx context.Context, orderID string, seller *domain.User) (domain.Order, error) {
	return s.advance(ctx, "OrderService.Confirm", orderID, seller, confirmStep)
}

func (s *OrderService) Ship(ctx context.Context, orderID string, seller *domain.User) (domain.Order, error) {
	return s.advance(ctx, "OrderService.Ship", orderID, seller, shipStep)
}

// Complete is the buyer's receipt. A drained listing is closed as sold once
// no other order on it is still open.
func (s *OrderService) Complete(ctx context.Context, orderID string, buyer *domain.User) (domain.Order, error) {
	return s.advance(ctx, "OrderService.Complete", orderID, buyer, completeStep)
}

func (s *OrderService) advance(ctx context.Context, name, orderID string, caller *domain.User, st step) (o domain.Order, err error) {
	ctx, span := startSpan(ctx, name, attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	now := repos.FormatTime(clock(s.Now))
	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		o, err = tx.Orders.Get(ctx, orderID)
		if err != nil {
			return lookup(err, "order", orderID)
		}
		party, who := o.SellerID, "seller"
		if st.byBuyer {
			party, who = o.BuyerID, "buyer"
		}
		if party != caller.ID {
			return domain.Errf(domain.KindForbidden, "only the %s can move this order to %s", who, st.to)
		}
		moved, err := tx.Orders.Transition(ctx, orderID, []string{st.from}, st.to, st.payment, now)
		if err != nil {
			return fmt.Errorf("transition order: %w", err)
		}
		if !moved {
			return domain.Errf(domain.KindInvalidTransition, "cannot move order from %s to %s", o.Status, st.to)
		}
		if st.to == domain.OrderCompleted {
			if _, err := tx.Listings.MarkSoldIfEmpty(ctx, o.ListingID, now); err != nil {
				return fmt.Errorf("close listing: %w", err)
			}
		}
		o.Status = st.to
		if st.payment != "" {
			o.PaymentStatus = st.payment
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if st.to == domain.OrderCompleted {
		s.Cache.Invalidate(ctx, o.ListingID)
	}
	metrics.OrderTransitions.WithLabelValues(st.to).Inc()
	publish(ctx, s.Events, s.Log, events.New(st.event, o.ID, map[string]any{
		"listing_id": o.ListingID,
		"buyer_id":   o.BuyerID,
		"seller_id":  o.SellerID,
	}))
	return o, nil
}

// Cancel is open to the seller while pending or confirmed and to the buyer
// only while pending. The ordered quantity goes back to the listing.
func (s *OrderService) Cancel(ctx context.Context, orderID string, requester *domain.User) (o domain.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.Cancel", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	now := repos.FormatTime(clock(s.Now))
	err = s.Store.InTx(ctx, func(tx *repos.Store) error {
		o, err = tx.Orders.Get(ctx, orderID)
		if err != nil {
			return lookup(err, "order", orderID)
		}
		var from []string
		switch requester.ID {
		case o.SellerID:
			from = []string{domain.OrderPending, domain.OrderConfirmed}
		case o.BuyerID:
			from = []string{domain.OrderPending}
		default:
			return domain.Errf(domain.KindForbidden, "only the buyer or seller can cancel order %s", orderID)
		}
		moved, err := tx.Orders.Transition(ctx, orderID, from, domain.OrderCancelled, domain.PaymentRefunded, now)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if !moved {
			return domain.Errf(domain.KindInvalidTransition, "order is %s and can no longer be cancelled by you", o.Status)
		}
		if err := tx.Listings.Release(ctx, o.ListingID, o.Quantity, now); err != nil {
			return fmt.Errorf("release quantity: %w", err)
		}
		o.Status = domain.OrderCancelled
		o.PaymentStatus = domain.PaymentRefunded
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.Cache.Invalidate(ctx, o.ListingID)
	metrics.OrderTransitions.WithLabelValues(domain.OrderCancelled).Inc()
	publish(ctx, s.Events, s.Log, events.New(events.OrderCancelled, o.ID, map[string]any{
		"listing_id":   o.ListingID,
		"cancelled_by": requester.ID,
		"quantity":     o.Quantity.String(),
	}))
	return o, nil
}

// Review stores the buyer's one-time rating of a completed order.
func (s *OrderService) Review(ctx context.Context, orderID string, buyer *domain.User, rating int, text string) (o domain.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.Review", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if rating < 1 || rating > 5 {
		return o, domain.Errf(domain.KindValidation, "rating must be between 1 and 5")
	}
	o, err = s.Store.Orders.Get(ctx, orderID)
	if err != nil {
		return o, lookup(err, "order", orderID)
	}
	if o.BuyerID != buyer.ID {
		return domain.Order{}, domain.Errf(domain.KindForbidden, "only the buyer can review order %s", orderID)
	}
	if o.Status != domain.OrderCompleted {
		return domain.Order{}, domain.Errf(domain.KindInvalidTransition, "only completed orders can be reviewed")
	}
	now := repos.FormatTime(clock(s.Now))
	ok, err := s.Store.Orders.SetReview(ctx, orderID, buyer.ID, rating, text, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("save review: %w", err)
	}
	if !ok {
		return domain.Order{}, domain.Errf(domain.KindAlreadyReviewed, "order %s has already been reviewed", orderID)
	}
	r := int64(rating)
	o.Rating = &r
	o.Review = &text
	o.UpdatedAt = now
	return o, nil
}

// Get shows an order to its buyer and its seller only.
func (s *OrderService) Get(ctx context.Context, orderID string, caller *domain.User) (domain.Order, error) {
	o, err := s.Store.Orders.Get(ctx, orderID)
	if err != nil {
		return o, lookup(err, "order", orderID)
	}
	if o.BuyerID != caller.ID && o.SellerID != caller.ID {
		return domain.Order{}, domain.Errf(domain.KindNotFound, "order %s not found", orderID)
	}
	return o, nil
}

// List pages through the caller's orders as buyer (default) or seller.
func (s *OrderService) List(ctx context.Context, caller *domain.User, role, status string, page, limit int) ([]domain.Order, domain.Page, error) {
	page, limit = normalizePage(page, limit)
	f := repos.OrderFilter{Status: status}
	switch role {
	case "", "buyer":
		f.BuyerID = caller.ID
	case "seller":
		f.SellerID = caller.ID
	default:
		return nil, domain.Page{}, domain.Errf(domain.KindValidation, "role must be buyer or seller")
	}
	rows, total, err := s.Store.Orders.List(ctx, f, page, limit)
	if err != nil {
		return nil, domain.Page{}, fmt.Errorf("list orders: %w", err)
	}
	return rows, domain.NewPage(page, limit, total), nil
}
