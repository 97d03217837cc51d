package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ecocycle/internal/domain"
)

// PointsRepo appends to the points ledger and the audit transaction log.
// Neither table is ever updated or deleted from.
type PointsRepo struct{ db sqlx.ExtContext }

func NewPointsRepo(db sqlx.ExtContext) *PointsRepo { return &PointsRepo{db: db} }

func (r *PointsRepo) Append(ctx context.Context, e *domain.PointsEntry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO points_history(id, user_id, points, type, description, reference_id, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.UserID, e.Points, e.Type, e.Description, e.ReferenceID, e.CreatedAt)
	return err
}

func (r *PointsRepo) Record(ctx context.Context, t *domain.Transaction) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO transactions(id, user_id, type, reference_id, amount, points_earned, description, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.UserID, t.Type, t.ReferenceID, t.Amount, t.PointsEarned, t.Description, t.CreatedAt)
	return err
}

// Sum is the ledger-derived balance of userID.
func (r *PointsRepo) Sum(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`
		SELECT COALESCE(SUM(points), 0) FROM points_history WHERE user_id = ?
	`), userID)
	return n, err
}

func (r *PointsRepo) History(ctx context.Context, userID string, page, limit int) ([]domain.PointsEntry, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT COUNT(*) FROM points_history WHERE user_id = ?`), userID); err != nil {
		return nil, 0, err
	}
	out := []domain.PointsEntry{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, user_id, points, type, description, reference_id, created_at
		FROM points_history WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`), userID, limit, offset(page, limit))
	return out, total, err
}

func (r *PointsRepo) Transactions(ctx context.Context, referenceID string) ([]domain.Transaction, error) {
	out := []domain.Transaction{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, user_id, type, reference_id, amount, points_earned, description, created_at
		FROM transactions WHERE reference_id = ? ORDER BY created_at, id
	`), referenceID)
	return out, err
}
