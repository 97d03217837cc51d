package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ecocycle/internal/domain"
)

type UserRepo struct{ db sqlx.ExtContext }

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, email, name, role, lat, lng, points`

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, r.db, &u, r.db.Rebind(`SELECT `+userCols+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users(id, email, name, role, lat, lng, points, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Email, u.Name, u.Role, u.Lat, u.Lng, u.Points, Now())
	return err
}

func (r *UserRepo) SetLocation(ctx context.Context, id string, lat, lng float64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET lat = ?, lng = ?, updated_at = ? WHERE id = ?
	`), lat, lng, Now(), id)
	return err
}

// AddPoints applies delta to the cached balance. It refuses (false) any change
// that would take the balance below zero, so concurrent redemptions cannot overdraw.
func (r *UserRepo) AddPoints(ctx context.Context, id string, delta int64) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET points = points + ?, updated_at = ?
		WHERE id = ? AND points + ? >= 0
	`), delta, Now(), id, delta))
}
