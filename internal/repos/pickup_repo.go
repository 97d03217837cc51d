package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
)

type PickupRepo struct{ db sqlx.ExtContext }

func NewPickupRepo(db sqlx.ExtContext) *PickupRepo { return &PickupRepo{db: db} }

const pickupCols = `id, owner_id, collector_id, lat, lng, address, scheduled_at, status,
  total_weight, total_price, notes, created_at, updated_at`

const pickupItemCols = `id, pickup_id, category_id, estimated_weight, actual_weight,
  price_per_unit, subtotal, photo_url`

func (r *PickupRepo) Create(ctx context.Context, p *domain.PickupRequest) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO pickups(id, owner_id, collector_id, lat, lng, address, scheduled_at, status,
		  total_weight, total_price, notes, created_at, updated_at)
		VALUES(?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.OwnerID, p.Lat, p.Lng, p.Address, p.ScheduledAt, p.Status,
		p.TotalWeight, p.TotalPrice, p.Notes, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PickupRepo) CreateItem(ctx context.Context, it *domain.PickupItem) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO pickup_items(id, pickup_id, category_id, estimated_weight, actual_weight,
		  price_per_unit, subtotal, photo_url)
		VALUES(?, ?, ?, ?, NULL, ?, ?, NULL)
	`), it.ID, it.PickupID, it.CategoryID, it.EstimatedWeight, it.PricePerUnit, it.Subtotal)
	return err
}

func (r *PickupRepo) Get(ctx context.Context, id string) (domain.PickupRequest, error) {
	var p domain.PickupRequest
	err := sqlx.GetContext(ctx, r.db, &p, r.db.Rebind(`SELECT `+pickupCols+` FROM pickups WHERE id = ?`), id)
	return p, err
}

func (r *PickupRepo) Items(ctx context.Context, pickupID string) ([]domain.PickupItem, error) {
	out := []domain.PickupItem{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+pickupItemCols+` FROM pickup_items WHERE pickup_id = ? ORDER BY id
	`), pickupID)
	return out, err
}

// PendingInBox is the bounding-box pre-filter; callers still apply the exact distance check.
func (r *PickupRepo) PendingInBox(ctx context.Context, box geo.Box) ([]domain.PickupRequest, error) {
	out := []domain.PickupRequest{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+pickupCols+` FROM pickups
		WHERE status = 'pending'
		  AND lat BETWEEN ? AND ?
		  AND lng BETWEEN ? AND ?
		ORDER BY scheduled_at
	`), box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	return out, err
}

// Assign is the single conditional write that decides an acceptance race.
func (r *PickupRepo) Assign(ctx context.Context, id, collectorID, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE pickups SET collector_id = ?, status = 'accepted', updated_at = ?
		WHERE id = ? AND status = 'pending' AND collector_id IS NULL
	`), collectorID, now, id))
}

// Advance moves a pickup held by collectorID from one of the from states to to.
func (r *PickupRepo) Advance(ctx context.Context, id, collectorID string, from []string, to, now string) (bool, error) {
	query, args, err := sqlx.In(`
		UPDATE pickups SET status = ?, updated_at = ?
		WHERE id = ? AND collector_id = ? AND status IN (?)
	`, to, now, id, collectorID, from)
	if err != nil {
		return false, err
	}
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(query), args...))
}

func (r *PickupRepo) CancelPending(ctx context.Context, id, ownerID, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE pickups SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND owner_id = ? AND status = 'pending'
	`), now, id, ownerID))
}

func (r *PickupRepo) ConfirmItem(ctx context.Context, pickupID, itemID string, actual, subtotal decimal.Decimal, photo *string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE pickup_items SET actual_weight = ?, subtotal = ?, photo_url = COALESCE(?, photo_url)
		WHERE id = ? AND pickup_id = ?
	`), actual, subtotal, photo, itemID, pickupID))
}

// Complete finalizes totals; it only matches a picked_up pickup held by collectorID.
func (r *PickupRepo) Complete(ctx context.Context, id, collectorID string, weight, price decimal.Decimal, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE pickups SET status = 'completed', total_weight = ?, total_price = ?, updated_at = ?
		WHERE id = ? AND collector_id = ? AND status = 'picked_up'
	`), weight, price, now, id, collectorID))
}

type PickupFilter struct {
	OwnerID     string
	CollectorID string
	Status      string
}

func (r *PickupRepo) List(ctx context.Context, f PickupFilter, page, limit int) ([]domain.PickupRequest, int, error) {
	where := `1 = 1`
	args := []any{}
	if f.OwnerID != "" {
		where += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.CollectorID != "" {
		where += ` AND collector_id = ?`
		args = append(args, f.CollectorID)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT COUNT(*) FROM pickups WHERE `+where), args...); err != nil {
		return nil, 0, err
	}
	out := []domain.PickupRequest{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+pickupCols+` FROM pickups WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`), append(args, limit, offset(page, limit))...)
	return out, total, err
}
