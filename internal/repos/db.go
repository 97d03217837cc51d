package repos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// OpenDB connects, applies the schema and seeds the category table.
// driver is "sqlite" (modernc, pure Go) or "postgres" (lib/pq).
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one connection: keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err := seedCategories(db); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	return db, nil
}

// Now is the timestamp format stored in every *_at column.
func Now() string { return FormatTime(time.Now()) }

func FormatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func ensureSchema(db *sqlx.DB) error {
	if db.DriverName() == "sqlite" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return err
		}
	}
	// Decimal amounts are stored as canonical decimal text and computed in Go;
	// sqlite would otherwise fold them to REAL.
	schema := `
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('customer','collector','admin')),
  lat DOUBLE PRECISION,
  lng DOUBLE PRECISION,
  points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
  created_at TEXT NOT NULL,
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS waste_categories(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  unit TEXT NOT NULL CHECK (unit IN ('kg','pcs','liter')),
  base_price_per_unit TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS pickups(
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL REFERENCES users(id),
  collector_id TEXT REFERENCES users(id),
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  scheduled_at TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','accepted','on_the_way','picked_up','completed','cancelled')),
  total_weight TEXT NOT NULL DEFAULT '0',
  total_price TEXT NOT NULL DEFAULT '0',
  notes TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pickups_status_geo ON pickups(status, lat, lng);
CREATE INDEX IF NOT EXISTS idx_pickups_owner ON pickups(owner_id);
CREATE INDEX IF NOT EXISTS idx_pickups_collector ON pickups(collector_id);

CREATE TABLE IF NOT EXISTS pickup_items(
  id TEXT PRIMARY KEY,
  pickup_id TEXT NOT NULL REFERENCES pickups(id) ON DELETE CASCADE,
  category_id TEXT NOT NULL REFERENCES waste_categories(id),
  estimated_weight TEXT NOT NULL,
  actual_weight TEXT,
  price_per_unit TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  photo_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_pickup_items_pickup ON pickup_items(pickup_id);

CREATE TABLE IF NOT EXISTS listings(
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL REFERENCES users(id),
  category_id TEXT NOT NULL REFERENCES waste_categories(id),
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  condition TEXT NOT NULL CHECK (condition IN ('raw','sorted','processed')),
  quantity TEXT NOT NULL,
  price_per_unit TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('available','reserved','sold')),
  lat DOUBLE PRECISION,
  lng DOUBLE PRECISION,
  expires_at TEXT NOT NULL,
  views_count BIGINT NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category_id);
CREATE INDEX IF NOT EXISTS idx_listings_title ON listings(LOWER(title));

CREATE TABLE IF NOT EXISTS orders(
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL REFERENCES listings(id),
  buyer_id TEXT NOT NULL REFERENCES users(id),
  seller_id TEXT NOT NULL REFERENCES users(id),
  quantity TEXT NOT NULL,
  total_price TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','confirmed','shipped','completed','cancelled')),
  payment_status TEXT NOT NULL CHECK (payment_status IN ('unpaid','paid','refunded')),
  shipping_address TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  rating INTEGER CHECK (rating BETWEEN 1 AND 5),
  review TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_listing ON orders(listing_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id);
CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id);

CREATE TABLE IF NOT EXISTS points_history(
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  points BIGINT NOT NULL,
  type TEXT NOT NULL CHECK (type IN ('earned','redeemed')),
  description TEXT NOT NULL DEFAULT '',
  reference_id TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_points_history_user ON points_history(user_id, created_at);

CREATE TABLE IF NOT EXISTS transactions(
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  type TEXT NOT NULL CHECK (type IN ('pickup','redemption')),
  reference_id TEXT NOT NULL,
  amount TEXT NOT NULL DEFAULT '0',
  points_earned BIGINT NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
`
	_, err := db.Exec(schema)
	return err
}

func seedCategories(db *sqlx.DB) error {
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	cats := []struct {
		ID, Name, Unit, Price string
	}{
		{"plastic", "Plastic", "kg", "3000"},
		{"paper", "Paper & Cardboard", "kg", "2000"},
		{"metal", "Metal", "kg", "8000"},
		{"glass", "Glass", "kg", "1000"},
		{"e-waste", "Electronic Waste", "kg", "15000"},
		{"organic", "Organic", "kg", "500"},
		{"cooking-oil", "Used Cooking Oil", "liter", "5000"},
	}
	for _, c := range cats {
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO waste_categories(id, name, unit, base_price_per_unit, active)
			VALUES(?, ?, ?, ?, 1)
			ON CONFLICT(id) DO NOTHING
		`), c.ID, c.Name, c.Unit, c.Price); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SeedDemo inserts demo users and one listing (idempotent).
func SeedDemo(db *sqlx.DB) error {
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	now := Now()
	users := []struct {
		ID, Email, Name, Role string
		Lat, Lng              any
	}{
		{"u-customer", "customer@ecocycle.test", "Citra", "customer", -6.2000, 106.8166},
		{"u-collector", "collector@ecocycle.test", "Bima", "collector", -6.2100, 106.8200},
		{"u-seller", "seller@ecocycle.test", "Sari", "customer", -6.1900, 106.8000},
		{"u-admin", "admin@ecocycle.test", "Admin", "admin", nil, nil},
	}
	for _, u := range users {
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO users(id, email, name, role, lat, lng, points, created_at)
			VALUES(?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(id) DO NOTHING
		`), u.ID, u.Email, u.Name, u.Role, u.Lat, u.Lng, now); err != nil {
			return err
		}
	}
	expires := FormatTime(time.Now().Add(30 * 24 * time.Hour))
	if _, err := tx.Exec(tx.Rebind(`
		INSERT INTO listings(id, seller_id, category_id, title, description, condition, quantity,
		  price_per_unit, status, lat, lng, expires_at, views_count, created_at, updated_at)
		VALUES('l-demo-pet', 'u-seller', 'plastic', 'Clean PET flakes', 'Washed and sorted PET bottle flakes',
		  'processed', '50', '6500', 'available', -6.1900, 106.8000, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`), expires, now, now); err != nil {
		return err
	}
	return tx.Commit()
}

// Store groups the repositories bound to one executor: the pool, or a
// transaction inside InTx.
type Store struct {
	db *sqlx.DB

	Users      *UserRepo
	Categories *CategoryRepo
	Pickups    *PickupRepo
	Listings   *ListingRepo
	Orders     *OrderRepo
	Points     *PointsRepo
}

func NewStore(db *sqlx.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(q sqlx.ExtContext) *Store {
	return &Store{
		Users:      NewUserRepo(q),
		Categories: NewCategoryRepo(q),
		Pickups:    NewPickupRepo(q),
		Listings:   NewListingRepo(q),
		Orders:     NewOrderRepo(q),
		Points:     NewPointsRepo(q),
	}
}

// InTx runs fn as one atomic unit. Any error (or panic) rolls everything back.
// Calling InTx on a transaction-bound store joins the running transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rowsChanged reports whether a conditional write matched a row.
func rowsChanged(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
