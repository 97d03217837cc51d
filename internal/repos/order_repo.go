package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ecocycle/internal/domain"
)

type OrderRepo struct{ db sqlx.ExtContext }

func NewOrderRepo(db sqlx.ExtContext) *OrderRepo { return &OrderRepo{db: db} }

const orderCols = `id, listing_id, buyer_id, seller_id, quantity, total_price, status, payment_status,
  shipping_address, notes, rating, review, created_at, updated_at`

func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO orders(id, listing_id, buyer_id, seller_id, quantity, total_price, status,
		  payment_status, shipping_address, notes, rating, review, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)
	`), o.ID, o.ListingID, o.BuyerID, o.SellerID, o.Quantity, o.TotalPrice, o.Status,
		o.PaymentStatus, o.ShippingAddress, o.Notes, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := sqlx.GetContext(ctx, r.db, &o, r.db.Rebind(`SELECT `+orderCols+` FROM orders WHERE id = ?`), id)
	return o, err
}

// Transition moves an order from one of the from states to to. payment is
// left untouched when empty. false means the order was no longer in from.
func (r *OrderRepo) Transition(ctx context.Context, id string, from []string, to, payment, now string) (bool, error) {
	set := `status = ?, updated_at = ?`
	args := []any{to, now}
	if payment != "" {
		set += `, payment_status = ?`
		args = append(args, payment)
	}
	query, args, err := sqlx.In(`UPDATE orders SET `+set+` WHERE id = ? AND status IN (?)`, append(args, id, from)...)
	if err != nil {
		return false, err
	}
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(query), args...))
}

// SetReview stores the one-time buyer review of a completed order.
func (r *OrderRepo) SetReview(ctx context.Context, id, buyerID string, rating int, text, now string) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE orders SET rating = ?, review = ?, updated_at = ?
		WHERE id = ? AND buyer_id = ? AND status = 'completed' AND rating IS NULL
	`), rating, text, now, id, buyerID))
}

type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   string
}

func (r *OrderRepo) List(ctx context.Context, f OrderFilter, page, limit int) ([]domain.Order, int, error) {
	where := `1 = 1`
	args := []any{}
	if f.BuyerID != "" {
		where += ` AND buyer_id = ?`
		args = append(args, f.BuyerID)
	}
	if f.SellerID != "" {
		where += ` AND seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT COUNT(*) FROM orders WHERE `+where), args...); err != nil {
		return nil, 0, err
	}
	out := []domain.Order{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+orderCols+` FROM orders WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`), append(args, limit, offset(page, limit))...)
	return out, total, err
}
