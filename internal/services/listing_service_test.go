package services_test

import (
	"context"
	"testing"
	"time"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
	"ecocycle/internal/services"
)

func TestListing_CreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ok := services.ListingInput{CategoryID: "paper", Title: "Cardboard bales", Quantity: d("20"), PricePerUnit: d("1500")}

	l, err := e.listings.Create(ctx, e.seller, ok)
	if err != nil {
		t.Fatal(err)
	}
	if l.Condition != "raw" || l.Status != domain.ListingAvailable {
		t.Fatalf("defaults not applied: %+v", l)
	}
	if l.Lat == nil || *l.Lat != *e.seller.Lat {
		t.Fatalf("location should default to the seller's: %+v", l)
	}

	bad := ok
	bad.Quantity = d("0")
	_, err = e.listings.Create(ctx, e.seller, bad)
	wantKind(t, err, domain.KindValidation)

	bad = ok
	bad.Condition = "shiny"
	_, err = e.listings.Create(ctx, e.seller, bad)
	wantKind(t, err, domain.KindValidation)

	bad = ok
	bad.CategoryID = "nope"
	_, err = e.listings.Create(ctx, e.seller, bad)
	wantKind(t, err, domain.KindValidation)

	bad = ok
	bad.ExpiresAt = ptr(time.Now().Add(-time.Hour))
	_, err = e.listings.Create(ctx, e.seller, bad)
	wantKind(t, err, domain.KindValidation)
}

func TestListing_UpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := e.createListing(t, "10", "500")

	_, err := e.listings.Update(ctx, e.buyer, l.ID, services.ListingPatch{Title: ptr("mine now")})
	wantKind(t, err, domain.KindForbidden)

	up, err := e.listings.Update(ctx, e.seller, l.ID, services.ListingPatch{
		Title: ptr("Premium PET"), PricePerUnit: ptr(d("750")),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := e.store.Listings.Get(ctx, l.ID)
	if got.Title != "Premium PET" || !got.PricePerUnit.Equal(d("750")) || up.Title != got.Title {
		t.Fatalf("update not stored: %+v", got)
	}

	if _, err := place(e, e.buyer, l.ID, "10"); err != nil {
		t.Fatal(err)
	}
	_, err = e.listings.Update(ctx, e.seller, l.ID, services.ListingPatch{Title: ptr("late edit")})
	wantKind(t, err, domain.KindInvalidTransition)
	err = e.listings.Delete(ctx, e.seller, l.ID)
	wantKind(t, err, domain.KindInvalidTransition)

	fresh := e.createListing(t, "1", "1")
	if err := e.listings.Delete(ctx, e.seller, fresh.ID); err != nil {
		t.Fatal(err)
	}
	_, err = e.store.Listings.Get(ctx, fresh.ID)
	if err == nil {
		t.Fatal("listing still present after delete")
	}
}

func TestListing_DeleteAfterCancelledOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := e.createListing(t, "5", "400")

	o, err := place(e, e.buyer, l.ID, "2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.orders.Cancel(ctx, o.ID, e.buyer); err != nil {
		t.Fatal(err)
	}
	if err := e.listings.Delete(ctx, e.seller, l.ID); err != nil {
		t.Fatalf("delete with only cancelled orders: %v", err)
	}

	_, err = e.listings.Get(ctx, l.ID)
	wantKind(t, err, domain.KindNotFound)
	_, err = place(e, e.owner, l.ID, "1")
	wantKind(t, err, domain.KindNotFound)
	err = e.listings.Delete(ctx, e.seller, l.ID)
	wantKind(t, err, domain.KindNotFound)

	rows, _, err := e.listings.List(ctx, services.ListingQuery{SellerID: e.seller.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if r.ID == l.ID {
			t.Fatal("deleted listing still listed")
		}
	}

	// the cancelled order keeps its history
	kept, err := e.orders.Get(ctx, o.ID, e.buyer)
	if err != nil {
		t.Fatal(err)
	}
	if kept.ListingID != l.ID || kept.Status != domain.OrderCancelled {
		t.Fatalf("order = %+v", kept)
	}
}

func TestListing_GetCountsViewsListDoesNot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := e.createListing(t, "10", "500")

	for i := 0; i < 3; i++ {
		if _, _, err := e.listings.List(ctx, services.ListingQuery{}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := e.store.Listings.Get(ctx, l.ID)
	if got.ViewsCount != 0 {
		t.Fatalf("list pages counted as views: %d", got.ViewsCount)
	}

	if _, err := e.listings.Get(ctx, l.ID); err != nil {
		t.Fatal(err)
	}
	v, err := e.listings.Get(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.ViewsCount != 2 {
		t.Fatalf("views = %d, want 2", v.ViewsCount)
	}

	_, err = e.listings.Get(ctx, "missing")
	wantKind(t, err, domain.KindNotFound)
}

func TestListing_ListFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cheap := e.createListing(t, "10", "500")
	pricey := e.createListing(t, "10", "9000")
	if _, err := e.listings.Update(ctx, e.seller, pricey.ID, services.ListingPatch{
		Title: ptr("Copper wire"), Condition: ptr("processed"),
	}); err != nil {
		t.Fatal(err)
	}
	drained := e.createListing(t, "1", "100")
	if _, err := place(e, e.buyer, drained.ID, "1"); err != nil {
		t.Fatal(err)
	}

	all, pg, err := e.listings.List(ctx, services.ListingQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || pg.Total != 2 {
		t.Fatalf("reserved listing should be hidden, got %d", len(all))
	}

	max := d("1000")
	rows, _, err := e.listings.List(ctx, services.ListingQuery{MaxPrice: &max})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != cheap.ID {
		t.Fatalf("price filter = %+v", rows)
	}

	rows, _, err = e.listings.List(ctx, services.ListingQuery{Q: "copper"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != pricey.ID {
		t.Fatalf("search = %+v", rows)
	}

	rows, _, err = e.listings.List(ctx, services.ListingQuery{Condition: "sorted"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != cheap.ID {
		t.Fatalf("condition filter = %+v", rows)
	}

	_, _, err = e.listings.List(ctx, services.ListingQuery{Condition: "melted"})
	wantKind(t, err, domain.KindValidation)
}

func TestListing_ListNearby(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	near := e.createListing(t, "10", "500")
	if _, err := e.listings.Create(ctx, e.seller, services.ListingInput{
		CategoryID: "metal", Title: "Far scrap", Quantity: d("1"), PricePerUnit: d("1"),
		Lat: ptr(-7.25), Lng: ptr(112.75),
	}); err != nil {
		t.Fatal(err)
	}

	rows, pg, err := e.listings.List(ctx, services.ListingQuery{
		Near: &geo.Point{Lat: -6.2, Lng: 106.8166}, RadiusKm: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != near.ID || pg.Total != 1 {
		t.Fatalf("nearby = %+v", rows)
	}
	if rows[0].DistanceKm == nil || *rows[0].DistanceKm >= 10 {
		t.Fatalf("distance missing: %+v", rows[0])
	}

	_, _, err = e.listings.List(ctx, services.ListingQuery{Near: &geo.Point{Lat: 100, Lng: 0}, RadiusKm: 5})
	wantKind(t, err, domain.KindInvalidCoordinate)
}
