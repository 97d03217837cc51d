package handlers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPickupLifecycleOverHTTP(t *testing.T) {
	app, logs := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/api/v1/pickups", "u-customer", map[string]any{
		"lat":          -6.2000,
		"lng":          106.8166,
		"address":      "Jl. Thamrin 10",
		"scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"items":        []map[string]any{{"category_id": "glass", "estimated_weight": "1.5"}},
	})
	wantStatus(t, status, http.StatusCreated, body)
	pickupID := body["id"].(string)
	itemID := body["items"].([]any)[0].(map[string]any)["id"].(string)

	status, body = call(t, app, http.MethodGet, "/api/v1/pickups/available?page=1&limit=5", "u-collector", nil)
	wantStatus(t, status, http.StatusOK, body)
	if data := body["data"].([]any); len(data) != 1 || data[0].(map[string]any)["id"] != pickupID {
		t.Fatalf("available: %v", body)
	}
	if pg := body["pagination"].(map[string]any); pg["total"] != float64(1) || pg["pages"] != float64(1) {
		t.Fatalf("available pagination: %v", pg)
	}
	status, body = call(t, app, http.MethodGet, "/api/v1/pickups/available?page=2&limit=5", "u-collector", nil)
	wantStatus(t, status, http.StatusOK, body)
	if data := body["data"].([]any); len(data) != 0 {
		t.Fatalf("available page 2: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/pickups/"+pickupID+"/accept", "u-collector", nil)
	wantStatus(t, status, http.StatusOK, body)
	if body["status"] != "accepted" || body["collector_id"] != "u-collector" {
		t.Fatalf("accept: %v", body)
	}

	// completion goes through confirm-weight only
	status, body = call(t, app, http.MethodPatch, "/api/v1/pickups/"+pickupID+"/status", "u-collector", map[string]any{"status": "completed"})
	wantStatus(t, status, http.StatusConflict, body)
	if errorKind(body) != "invalid_transition" {
		t.Fatalf("kind: %v", body)
	}
	for _, s := range []string{"on_the_way", "picked_up"} {
		status, body = call(t, app, http.MethodPatch, "/api/v1/pickups/"+pickupID+"/status", "u-collector", map[string]any{"status": s})
		wantStatus(t, status, http.StatusOK, body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/pickups/"+pickupID+"/confirm-weight", "u-collector", map[string]any{
		"items": []map[string]any{{"id": "missing-item", "actual_weight": "2"}},
	})
	wantStatus(t, status, http.StatusNotFound, body)
	if errorKind(body) != "item_not_found" {
		t.Fatalf("kind: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/pickups/"+pickupID+"/confirm-weight", "u-collector", map[string]any{
		"items": []map[string]any{{"id": itemID, "actual_weight": "2"}},
	})
	wantStatus(t, status, http.StatusOK, body)
	if body["points_awarded"] != float64(20) {
		t.Fatalf("points: %v", body)
	}
	p := body["pickup"].(map[string]any)
	if p["status"] != "completed" || p["total_price"] != "2000" {
		t.Fatalf("pickup: %v", p)
	}
	if logs.FilterMessage("pickup.complete").FilterField(zap.String("kind", "audit")).Len() != 1 {
		t.Fatal("completion not audited")
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/points/balance", "u-customer", nil)
	wantStatus(t, status, http.StatusOK, body)
	if body["points"] != float64(20) {
		t.Fatalf("balance: %v", body)
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/points/history", "u-customer", nil)
	wantStatus(t, status, http.StatusOK, body)
	pg := body["pagination"].(map[string]any)
	if pg["total"] != float64(1) || pg["current"] != float64(1) {
		t.Fatalf("history pagination: %v", pg)
	}

	// the seller is neither owner nor collector
	status, body = call(t, app, http.MethodGet, "/api/v1/pickups/"+pickupID, "u-seller", nil)
	wantStatus(t, status, http.StatusNotFound, body)
}

func TestPickupValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/api/v1/pickups", "u-customer", map[string]any{
		"lat":          -6.2,
		"lng":          106.8,
		"address":      "x",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		"items":        []map[string]any{},
	})
	wantStatus(t, status, http.StatusUnprocessableEntity, body)
	if errorKind(body) != "validation_error" {
		t.Fatalf("kind: %v", body)
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/pickups?status=lost", "u-customer", nil)
	wantStatus(t, status, http.StatusUnprocessableEntity, body)
}

func TestOrderOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/api/v1/orders", "u-customer", map[string]any{
		"listing_id": "l-demo-pet", "quantity": "51", "shipping_address": "Jl. Gatot Subroto 5",
	})
	wantStatus(t, status, http.StatusConflict, body)
	e := body["error"].(map[string]any)
	fields := e["fields"].(map[string]any)
	if e["kind"] != "out_of_stock" || fields["available"] != "50" || fields["requested"] != "51" {
		t.Fatalf("out of stock: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/orders", "u-seller", map[string]any{
		"listing_id": "l-demo-pet", "quantity": "1", "shipping_address": "x",
	})
	wantStatus(t, status, http.StatusForbidden, body)

	status, body = call(t, app, http.MethodPost, "/api/v1/orders", "u-customer", map[string]any{
		"listing_id": "l-demo-pet", "quantity": "10", "shipping_address": "Jl. Gatot Subroto 5",
	})
	wantStatus(t, status, http.StatusCreated, body)
	orderID := body["id"].(string)
	if body["total_price"] != "65000" || body["status"] != "pending" {
		t.Fatalf("order: %v", body)
	}

	_, body = call(t, app, http.MethodGet, "/api/v1/listings/l-demo-pet", "", nil)
	if body["quantity"] != "40" {
		t.Fatalf("stock not reserved: %v", body)
	}

	// only the seller confirms
	status, body = call(t, app, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", "u-customer", nil)
	wantStatus(t, status, http.StatusForbidden, body)

	for _, step := range []struct{ action, user, want string }{
		{"confirm", "u-seller", "confirmed"},
		{"ship", "u-seller", "shipped"},
		{"complete", "u-customer", "completed"},
	} {
		status, body = call(t, app, http.MethodPost, "/api/v1/orders/"+orderID+"/"+step.action, step.user, nil)
		wantStatus(t, status, http.StatusOK, body)
		if body["status"] != step.want {
			t.Fatalf("%s: %v", step.action, body)
		}
	}
	if body["payment_status"] != "paid" {
		t.Fatalf("payment: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/orders/"+orderID+"/review", "u-customer", map[string]any{"rating": 6})
	wantStatus(t, status, http.StatusUnprocessableEntity, body)
	status, body = call(t, app, http.MethodPost, "/api/v1/orders/"+orderID+"/review", "u-customer", map[string]any{"rating": 5, "review": "clean flakes"})
	wantStatus(t, status, http.StatusOK, body)
	status, body = call(t, app, http.MethodPost, "/api/v1/orders/"+orderID+"/review", "u-customer", map[string]any{"rating": 4})
	wantStatus(t, status, http.StatusConflict, body)

	status, body = call(t, app, http.MethodGet, "/api/v1/orders?role=seller", "u-seller", nil)
	wantStatus(t, status, http.StatusOK, body)
	if data := body["data"].([]any); len(data) != 1 {
		t.Fatalf("seller orders: %v", body)
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/orders/"+orderID, "u-collector", nil)
	wantStatus(t, status, http.StatusNotFound, body)
}

func TestListingsOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	for i := 0; i < 3; i++ {
		status, body := call(t, app, http.MethodPost, "/api/v1/listings", "u-seller", map[string]any{
			"category_id":    "paper",
			"title":          fmt.Sprintf("Cardboard bale %d", i),
			"quantity":       "100",
			"price_per_unit": "1500",
		})
		wantStatus(t, status, http.StatusCreated, body)
	}

	status, body := call(t, app, http.MethodGet, "/api/v1/listings?category=paper&limit=2&page=2", "", nil)
	wantStatus(t, status, http.StatusOK, body)
	pg := body["pagination"].(map[string]any)
	if len(body["data"].([]any)) != 1 || pg["total"] != float64(3) || pg["pages"] != float64(2) || pg["current"] != float64(2) {
		t.Fatalf("paging: %v", body)
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/listings?lat=-6.19&lng=106.80&radius_km=1&category=plastic", "", nil)
	wantStatus(t, status, http.StatusOK, body)
	data := body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["id"] != "l-demo-pet" {
		t.Fatalf("nearby: %v", body)
	}
	if _, ok := data[0].(map[string]any)["distance_km"]; !ok {
		t.Fatalf("distance missing: %v", data[0])
	}

	status, body = call(t, app, http.MethodGet, "/api/v1/listings?condition=mushy", "", nil)
	wantStatus(t, status, http.StatusUnprocessableEntity, body)

	status, body = call(t, app, http.MethodGet, "/api/v1/listings?lat=95&lng=10", "", nil)
	wantStatus(t, status, http.StatusUnprocessableEntity, body)

	status, body = call(t, app, http.MethodDelete, "/api/v1/listings/l-demo-pet", "u-customer", nil)
	wantStatus(t, status, http.StatusForbidden, body)
}

func TestRedeemOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodGet, "/api/v1/rewards", "", nil)
	wantStatus(t, status, http.StatusOK, body)
	if len(body["data"].([]any)) != 4 {
		t.Fatalf("rewards: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/rewards/r-plant/redeem", "u-customer", nil)
	wantStatus(t, status, http.StatusConflict, body)
	e := body["error"].(map[string]any)
	fields := e["fields"].(map[string]any)
	if e["kind"] != "insufficient_points" || fields["required"] != float64(300) || fields["balance"] != float64(0) {
		t.Fatalf("redeem: %v", body)
	}

	status, body = call(t, app, http.MethodPost, "/api/v1/rewards/r-yacht/redeem", "u-customer", nil)
	wantStatus(t, status, http.StatusNotFound, body)
}
