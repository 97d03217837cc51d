package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/repos"
	"ecocycle/internal/services"
)

type env struct {
	store     *repos.Store
	pickups   *services.PickupService
	listings  *services.ListingService
	orders    *services.OrderService
	points    *services.PointsService
	catalog   *services.CatalogService
	accounts  *services.AccountService
	owner     *domain.User
	collector *domain.User
	rival     *domain.User
	seller    *domain.User
	buyer     *domain.User
	admin     *domain.User
}

func ptr[T any](v T) *T { return &v }

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := repos.NewStore(db)
	logger := zaptest.NewLogger(t)
	e := &env{
		store:    store,
		pickups:  services.NewPickupService(store, events.Nop{}, logger),
		listings: services.NewListingService(store, nil),
		orders:   services.NewOrderService(store, nil, events.Nop{}, logger),
		points:   services.NewPointsService(store, events.Nop{}, logger),
		catalog:  services.NewCatalogService(store.Categories),
		accounts: services.NewAccountService(store.Users),
	}

	mk := func(id, role string, lat, lng *float64) *domain.User {
		u := &domain.User{ID: id, Email: id + "@test", Name: id, Role: role, Lat: lat, Lng: lng}
		if err := store.Users.Create(context.Background(), u); err != nil {
			t.Fatal(err)
		}
		return u
	}
	e.owner = mk("owner", domain.RoleCustomer, ptr(-6.2000), ptr(106.8166))
	e.collector = mk("collector", domain.RoleCollector, ptr(-6.2100), ptr(106.8200))
	e.rival = mk("rival", domain.RoleCollector, ptr(-6.2050), ptr(106.8150))
	e.seller = mk("seller", domain.RoleCustomer, ptr(-6.1900), ptr(106.8000))
	e.buyer = mk("buyer", domain.RoleCustomer, nil, nil)
	e.admin = mk("admin", domain.RoleAdmin, nil, nil)
	return e
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// createPickup makes a one-item glass pickup (1000 per kg) at the owner's location.
func (e *env) createPickup(t *testing.T, weight string) domain.PickupRequest {
	t.Helper()
	p, err := e.pickups.Create(context.Background(), e.owner, services.CreatePickupInput{
		Lat:         *e.owner.Lat,
		Lng:         *e.owner.Lng,
		Address:     "Jl. Sudirman 1",
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Items:       []services.PickupItemInput{{CategoryID: "glass", EstimatedWeight: d(weight)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// pickedUp drives a fresh pickup to picked_up with e.collector assigned.
func (e *env) pickedUp(t *testing.T, weight string) domain.PickupRequest {
	t.Helper()
	ctx := context.Background()
	p := e.createPickup(t, weight)
	if _, err := e.pickups.Accept(ctx, p.ID, e.collector); err != nil {
		t.Fatal(err)
	}
	if _, err := e.pickups.AdvanceStatus(ctx, p.ID, e.collector, domain.PickupOnTheWay); err != nil {
		t.Fatal(err)
	}
	p, err := e.pickups.AdvanceStatus(ctx, p.ID, e.collector, domain.PickupPickedUp)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *env) createListing(t *testing.T, qty, price string) domain.Listing {
	t.Helper()
	l, err := e.listings.Create(context.Background(), e.seller, services.ListingInput{
		CategoryID:   "plastic",
		Title:        "PET flakes",
		Description:  "clean and sorted",
		Condition:    "sorted",
		Quantity:     d(qty),
		PricePerUnit: d(price),
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

func checkLedger(t *testing.T, e *env, userID string) int64 {
	t.Helper()
	bal, _, err := e.points.VerifyLedger(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return bal
}
