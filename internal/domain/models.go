package domain

import "github.com/shopspring/decimal"

// Pickup statuses.
const (
	PickupPending   = "pending"
	PickupAccepted  = "accepted"
	PickupOnTheWay  = "on_the_way"
	PickupPickedUp  = "picked_up"
	PickupCompleted = "completed"
	PickupCancelled = "cancelled"
)

// Listing statuses.
const (
	ListingAvailable = "available"
	ListingReserved  = "reserved"
	ListingSold      = "sold"
)

// Order statuses. The pre-completion state is spelled "shipped" everywhere.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

const (
	PointsEarned   = "earned"
	PointsRedeemed = "redeemed"
)

const (
	TxPickup     = "pickup"
	TxRedemption = "redemption"
)

type WasteCategory struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Unit             string          `db:"unit" json:"unit"` // kg | pcs | liter
	BasePricePerUnit decimal.Decimal `db:"base_price_per_unit" json:"base_price_per_unit"`
	Active           bool            `db:"active" json:"active"`
}

type PickupRequest struct {
	ID          string          `db:"id" json:"id"`
	OwnerID     string          `db:"owner_id" json:"owner_id"`
	CollectorID *string         `db:"collector_id" json:"collector_id"`
	Lat         float64         `db:"lat" json:"lat"`
	Lng         float64         `db:"lng" json:"lng"`
	Address     string          `db:"address" json:"address"`
	ScheduledAt string          `db:"scheduled_at" json:"scheduled_at"`
	Status      string          `db:"status" json:"status"`
	TotalWeight decimal.Decimal `db:"total_weight" json:"total_weight"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	Notes       string          `db:"notes" json:"notes,omitempty"`
	CreatedAt   string          `db:"created_at" json:"created_at"`
	UpdatedAt   string          `db:"updated_at" json:"updated_at"`

	Items []PickupItem `db:"-" json:"items,omitempty"`
}

type PickupItem struct {
	ID              string           `db:"id" json:"id"`
	PickupID        string           `db:"pickup_id" json:"pickup_id"`
	CategoryID      string           `db:"category_id" json:"category_id"`
	EstimatedWeight decimal.Decimal  `db:"estimated_weight" json:"estimated_weight"`
	ActualWeight    *decimal.Decimal `db:"actual_weight" json:"actual_weight"`
	PricePerUnit    decimal.Decimal  `db:"price_per_unit" json:"price_per_unit"`
	Subtotal        decimal.Decimal  `db:"subtotal" json:"subtotal"`
	PhotoURL        *string          `db:"photo_url" json:"photo_url,omitempty"`
}

// Weight is the confirmed weight when present, otherwise the estimate.
func (it PickupItem) Weight() decimal.Decimal {
	if it.ActualWeight != nil {
		return *it.ActualWeight
	}
	return it.EstimatedWeight
}

type Listing struct {
	ID           string          `db:"id" json:"id"`
	SellerID     string          `db:"seller_id" json:"seller_id"`
	CategoryID   string          `db:"category_id" json:"category_id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Condition    string          `db:"condition" json:"condition"` // raw | sorted | processed
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	PricePerUnit decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Status       string          `db:"status" json:"status"`
	Lat          *float64        `db:"lat" json:"lat,omitempty"`
	Lng          *float64        `db:"lng" json:"lng,omitempty"`
	ExpiresAt    string          `db:"expires_at" json:"expires_at"`
	ViewsCount   int64           `db:"views_count" json:"views_count"`
	CreatedAt    string          `db:"created_at" json:"created_at"`
	UpdatedAt    string          `db:"updated_at" json:"updated_at"`
}

type Order struct {
	ID              string          `db:"id" json:"id"`
	ListingID       string          `db:"listing_id" json:"listing_id"`
	BuyerID         string          `db:"buyer_id" json:"buyer_id"`
	SellerID        string          `db:"seller_id" json:"seller_id"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"total_price"`
	Status          string          `db:"status" json:"status"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	Rating          *int64          `db:"rating" json:"rating"`
	Review          *string         `db:"review" json:"review"`
	CreatedAt       string          `db:"created_at" json:"created_at"`
	UpdatedAt       string          `db:"updated_at" json:"updated_at"`
}

// PointsEntry is one immutable row of the points ledger.
type PointsEntry struct {
	ID          string `db:"id" json:"id"`
	UserID      string `db:"user_id" json:"user_id"`
	Points      int64  `db:"points" json:"points"`
	Type        string `db:"type" json:"type"`
	Description string `db:"description" json:"description"`
	ReferenceID string `db:"reference_id" json:"reference_id"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

// Transaction is an audit record; balances are never computed from it.
type Transaction struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Type         string          `db:"type" json:"type"`
	ReferenceID  string          `db:"reference_id" json:"reference_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	PointsEarned int64           `db:"points_earned" json:"points_earned"`
	Description  string          `db:"description" json:"description"`
	CreatedAt    string          `db:"created_at" json:"created_at"`
}

type Reward struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	RequiredPoints int64  `json:"required_points"`
}

// Page is the pagination block returned by list operations.
type Page struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

func NewPage(page, limit, total int) Page {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Current: page, Pages: pages, Total: total}
}
