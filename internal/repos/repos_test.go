package repos_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
	"ecocycle/internal/repos"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func memStore(t *testing.T) *repos.Store {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repos.SeedDemo(db); err != nil {
		t.Fatal(err)
	}
	// seeding twice is a no-op
	if err := repos.SeedDemo(db); err != nil {
		t.Fatal(err)
	}
	return repos.NewStore(db)
}

func TestSeed_CategoriesAndDemo(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	cats, err := s.Categories.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 7 {
		t.Fatalf("categories = %d, want 7", len(cats))
	}
	c, err := s.Categories.Get(ctx, "metal")
	if err != nil {
		t.Fatal(err)
	}
	if !c.BasePricePerUnit.Equal(mustDec(t, "8000")) || !c.Active {
		t.Fatalf("metal = %+v", c)
	}
	u, err := s.Users.ByID(ctx, "u-collector")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := u.Location(); !ok || u.Role != domain.RoleCollector {
		t.Fatalf("collector = %+v", u)
	}
}

func TestUsers_AddPointsNeverNegative(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	ok, err := s.Users.AddPoints(ctx, "u-customer", 40)
	if err != nil || !ok {
		t.Fatalf("credit: %v %v", ok, err)
	}
	ok, err = s.Users.AddPoints(ctx, "u-customer", -41)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("debit below zero was applied")
	}
	u, _ := s.Users.ByID(ctx, "u-customer")
	if u.Points != 40 {
		t.Fatalf("points = %d", u.Points)
	}
}

func TestListings_ReserveReleaseSold(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	now := repos.Now()

	ok, err := s.Listings.Reserve(ctx, "l-demo-pet", mustDec(t, "51"), now)
	if err != nil || ok {
		t.Fatalf("overdraw reserve = %v %v", ok, err)
	}
	ok, err = s.Listings.Reserve(ctx, "l-demo-pet", mustDec(t, "50"), now)
	if err != nil || !ok {
		t.Fatalf("reserve = %v %v", ok, err)
	}
	l, _ := s.Listings.Get(ctx, "l-demo-pet")
	if l.Status != domain.ListingReserved || !l.Quantity.IsZero() {
		t.Fatalf("after reserve = %s/%s", l.Quantity, l.Status)
	}
	ok, err = s.Listings.Reserve(ctx, "l-demo-pet", mustDec(t, "1"), now)
	if err != nil || ok {
		t.Fatalf("reserve on reserved listing = %v %v", ok, err)
	}

	// no orders reference it, so a drained listing can close
	if err := s.Listings.Release(ctx, "l-demo-pet", mustDec(t, "5"), now); err != nil {
		t.Fatal(err)
	}
	l, _ = s.Listings.Get(ctx, "l-demo-pet")
	if l.Status != domain.ListingAvailable || !l.Quantity.Equal(mustDec(t, "5")) {
		t.Fatalf("after release = %s/%s", l.Quantity, l.Status)
	}
	if sold, _ := s.Listings.MarkSoldIfEmpty(ctx, "l-demo-pet", now); sold {
		t.Fatal("listing with stock marked sold")
	}
}

func TestListings_FractionalReserveIsExact(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	now := repos.Now()

	for _, q := range []string{"49.7", "0.1", "0.1"} {
		if ok, err := s.Listings.Reserve(ctx, "l-demo-pet", mustDec(t, q), now); err != nil || !ok {
			t.Fatalf("reserve %s = %v %v", q, ok, err)
		}
	}
	l, _ := s.Listings.Get(ctx, "l-demo-pet")
	if l.Status != domain.ListingAvailable || !l.Quantity.Equal(mustDec(t, "0.1")) {
		t.Fatalf("after partial reserves = %s/%s", l.Quantity, l.Status)
	}
	if ok, err := s.Listings.Reserve(ctx, "l-demo-pet", mustDec(t, "0.1"), now); err != nil || !ok {
		t.Fatalf("last fraction = %v %v", ok, err)
	}
	l, _ = s.Listings.Get(ctx, "l-demo-pet")
	if l.Status != domain.ListingReserved || !l.Quantity.IsZero() {
		t.Fatalf("drained = %s/%s", l.Quantity, l.Status)
	}
	if sold, err := s.Listings.MarkSoldIfEmpty(ctx, "l-demo-pet", now); err != nil || !sold {
		t.Fatalf("mark sold = %v %v", sold, err)
	}
}

func TestListings_BoxFilter(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	box, err := geo.BoundingBox(geo.Point{Lat: -6.19, Lng: 106.80}, 1)
	if err != nil {
		t.Fatal(err)
	}
	in, err := s.Listings.All(ctx, repos.ListingFilter{Box: &box}, repos.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 1 {
		t.Fatalf("in box = %d, want 1", len(in))
	}
	far, err := geo.BoundingBox(geo.Point{Lat: 10, Lng: 10}, 1)
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Listings.All(ctx, repos.ListingFilter{Box: &far}, repos.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("far box = %d, want 0", len(out))
	}
}
