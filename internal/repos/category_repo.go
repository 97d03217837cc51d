package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ecocycle/internal/domain"
)

type CategoryRepo struct{ db sqlx.ExtContext }

func NewCategoryRepo(db sqlx.ExtContext) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) List(ctx context.Context, activeOnly bool) ([]domain.WasteCategory, error) {
	q := `SELECT id, name, unit, base_price_per_unit, active FROM waste_categories`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY name`
	out := []domain.WasteCategory{}
	err := sqlx.SelectContext(ctx, r.db, &out, q)
	return out, err
}

func (r *CategoryRepo) Get(ctx context.Context, id string) (domain.WasteCategory, error) {
	var c domain.WasteCategory
	err := sqlx.GetContext(ctx, r.db, &c, r.db.Rebind(`
		SELECT id, name, unit, base_price_per_unit, active FROM waste_categories WHERE id = ?
	`), id)
	return c, err
}

// ByIDs returns the categories found among ids, keyed by id.
func (r *CategoryRepo) ByIDs(ctx context.Context, ids []string) (map[string]domain.WasteCategory, error) {
	out := map[string]domain.WasteCategory{}
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, name, unit, base_price_per_unit, active FROM waste_categories WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}
	var rows []domain.WasteCategory
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

// SetPrice changes the price used for new pickup items only; existing items
// keep their snapshot.
func (r *CategoryRepo) SetPrice(ctx context.Context, id string, price decimal.Decimal) (bool, error) {
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE waste_categories SET base_price_per_unit = ? WHERE id = ?
	`), price, id))
}

func (r *CategoryRepo) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	v := 0
	if active {
		v = 1
	}
	return rowsChanged(r.db.ExecContext(ctx, r.db.Rebind(`UPDATE waste_categories SET active = ? WHERE id = ?`), v, id))
}
