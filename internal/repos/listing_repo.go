package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
)

// ListingRepo owns the listing row and guards its quantity: every change to
// quantity is a conditional write that cannot take it below zero.
type ListingRepo struct{ db sqlx.ExtContext }

func NewListingRepo(db sqlx.ExtContext) *ListingRepo { return &ListingRepo{db: db} }

const listingCols = `id, seller_id, category_id, title, description, condition, quantity,
  price_per_unit, status, lat, lng, expires_at, views_count, created_at, updated_at`

func (r *ListingRepo) Create(ctx context.Context, l *domain.Listing) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO listings(id, seller_id, category_id, title, description, condition, quantity,
		  price_per_unit, status, lat, lng, expires_at, views_count, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`), l.ID, l.SellerID, l.CategoryID, l.Title, l.Description, l.Condition, l.Quantity,
		l.PricePerUnit, l.Status, l.Lat, l.Lng, l.ExpiresAt, l.CreatedAt, l.UpdatedAt)
	return err
}

func (r *ListingRepo) Get(ctx context.Context, id string) (domain.Listing, error) {
	var l domain.Listing
	err := sqlx.GetContext(ctx, r.db, &l, r.db.Rebind(`
		SELECT `+listingCols+` FROM listings WHERE id = ? AND deleted_at IS NULL
	`), id)
	return l, err
}

// Update rewrites seller-editable fields while the listing is still available.
func (r *ListingRepo) Update(ctx context.Context, l *domain.Listing) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE listings SET title = ?, description = ?, condition = ?, quantity = ?,
		  price_per_unit = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND seller_id = ? AND status = 'available' AND deleted_at IS NULL
	`), l.Title, l.Description, l.Condition, l.Quantity, l.PricePerUnit, l.ExpiresAt, l.UpdatedAt,
		l.ID, l.SellerID))
}

// Delete retires a listing that no live order references. The row stays so
// cancelled orders keep pointing at it; reads no longer see it.
func (r *ListingRepo) Delete(ctx context.Context, id, sellerID, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE listings SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND seller_id = ? AND deleted_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.listing_id = listings.id AND o.status <> 'cancelled')
	`), now, now, id, sellerID))
}

// ErrContended reports a quantity write that kept losing to concurrent writers.
var ErrContended = errors.New("listing quantity changed concurrently")

const casAttempts = 5

// swapQuantity writes quantity and status only if the row still holds the
// values cur was read with.
func (r *ListingRepo) swapQuantity(ctx context.Context, cur domain.Listing, qty decimal.Decimal, status, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE listings SET quantity = ?, status = ?, updated_at = ?
		WHERE id = ? AND quantity = ? AND status = ? AND deleted_at IS NULL
	`), qty, status, now, cur.ID, cur.Quantity, cur.Status))
}

// Reserve takes qty off an available, unexpired listing and flips it to
// reserved when nothing is left. The remainder is computed with decimals and
// written as a compare-and-set, so concurrent buyers can never oversell.
// false means the listing cannot cover qty.
func (r *ListingRepo) Reserve(ctx context.Context, id string, qty decimal.Decimal, now string) (bool, error) {
	for i := 0; i < casAttempts; i++ {
		l, err := r.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if l.Status != domain.ListingAvailable || l.ExpiresAt <= now || l.Quantity.LessThan(qty) {
			return false, nil
		}
		left := l.Quantity.Sub(qty)
		status := domain.ListingAvailable
		if left.IsZero() {
			status = domain.ListingReserved
		}
		ok, err := r.swapQuantity(ctx, l, left, status, now)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, ErrContended
}

// Release returns qty to the listing; a reserved listing becomes available again.
func (r *ListingRepo) Release(ctx context.Context, id string, qty decimal.Decimal, now string) error {
	for i := 0; i < casAttempts; i++ {
		l, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		back := l.Quantity.Add(qty)
		status := l.Status
		if status == domain.ListingReserved && back.IsPositive() {
			status = domain.ListingAvailable
		}
		ok, err := r.swapQuantity(ctx, l, back, status, now)
		if err != nil || ok {
			return err
		}
	}
	return ErrContended
}

// MarkSoldIfEmpty closes a drained (reserved) listing once no order on it is
// still open.
func (r *ListingRepo) MarkSoldIfEmpty(ctx context.Context, id, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE listings SET status = 'sold', updated_at = ?
		WHERE id = ? AND status = 'reserved' AND deleted_at IS NULL
		  AND NOT EXISTS (
		    SELECT 1 FROM orders o
		    WHERE o.listing_id = listings.id AND o.status IN ('pending','confirmed','shipped'))
	`), now, id))
}

func (r *ListingRepo) IncrementViews(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE listings SET views_count = views_count + 1 WHERE id = ? AND deleted_at IS NULL
	`), id)
	return err
}

type ListingFilter struct {
	CategoryID string
	Condition  string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Q          string
	SellerID   string
	Box        *geo.Box
}

func (f ListingFilter) where(now string) (string, []any) {
	where := `status = 'available' AND deleted_at IS NULL AND expires_at > ?`
	args := []any{now}
	if f.CategoryID != "" {
		where += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Condition != "" {
		where += ` AND condition = ?`
		args = append(args, f.Condition)
	}
	if f.MinPrice != nil {
		where += ` AND CAST(price_per_unit AS DOUBLE PRECISION) >= ?`
		args = append(args, f.MinPrice.InexactFloat64())
	}
	if f.MaxPrice != nil {
		where += ` AND CAST(price_per_unit AS DOUBLE PRECISION) <= ?`
		args = append(args, f.MaxPrice.InexactFloat64())
	}
	if f.Q != "" {
		like := "%" + strings.ToLower(f.Q) + "%"
		where += ` AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)`
		args = append(args, like, like)
	}
	if f.SellerID != "" {
		where += ` AND seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Box != nil {
		where += ` AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`
		args = append(args, f.Box.MinLat, f.Box.MaxLat, f.Box.MinLng, f.Box.MaxLng)
	}
	return where, args
}

// List returns one page of available, unexpired listings matching f.
func (r *ListingRepo) List(ctx context.Context, f ListingFilter, now string, page, limit int) ([]domain.Listing, int, error) {
	where, args := f.where(now)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT COUNT(*) FROM listings WHERE `+where), args...); err != nil {
		return nil, 0, err
	}
	out := []domain.Listing{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+listingCols+` FROM listings WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`), append(args, limit, offset(page, limit))...)
	return out, total, err
}

// All returns every match of f without paging; used when the exact geo check
// has to run before the page is cut.
func (r *ListingRepo) All(ctx context.Context, f ListingFilter, now string) ([]domain.Listing, error) {
	where, args := f.where(now)
	out := []domain.Listing{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+listingCols+` FROM listings WHERE `+where+` ORDER BY created_at DESC, id
	`), args...)
	return out, err
}
