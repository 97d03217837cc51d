package repos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"ecocycle/internal/domain"
	"ecocycle/internal/repos"
)

func mockStore(t *testing.T) (*repos.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repos.NewStore(sqlx.NewDb(db, "sqlite")), mock
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET points = points \+ \?`).
		WithArgs(int64(30), sqlmock.AnyArg(), "u1", int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO points_history`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx *repos.Store) error {
		if _, err := tx.Users.AddPoints(context.Background(), "u1", 30); err != nil {
			return err
		}
		return tx.Points.Append(context.Background(), &domain.PointsEntry{ID: "e1", UserID: "u1", Points: 30, Type: domain.PointsEarned})
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInTx_Commits(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx *repos.Store) error {
		// nested calls join the running transaction
		return tx.InTx(context.Background(), func(inner *repos.Store) error {
			return inner.Points.Record(context.Background(), &domain.Transaction{ID: "t1", UserID: "u1", Type: domain.TxPickup})
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInTx_CommitFailureSurfaces(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := store.InTx(context.Background(), func(*repos.Store) error { return nil })
	if err == nil {
		t.Fatal("commit error swallowed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

var listingColumns = []string{"id", "seller_id", "category_id", "title", "description", "condition",
	"quantity", "price_per_unit", "status", "lat", "lng", "expires_at", "views_count", "created_at", "updated_at"}

func listingRow(qty, status string) *sqlmock.Rows {
	return sqlmock.NewRows(listingColumns).AddRow("l1", "u-seller", "plastic", "PET", "", "raw",
		qty, "1000", status, nil, nil, "2999-01-01T00:00:00Z", 0, "2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z")
}

func TestReserve_GuardRejected(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM listings WHERE id`).WillReturnRows(listingRow("2", "available"))
	ok, err := store.Listings.Reserve(context.Background(), "l1", mustDec(t, "3"), repos.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("short listing must report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// A lost compare-and-set rereads the row and retries against the new quantity.
func TestReserve_RetriesAfterConcurrentWrite(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM listings WHERE id`).WillReturnRows(listingRow("5", "available"))
	mock.ExpectExec(`UPDATE listings SET quantity = \?, status = \?`).
		WithArgs("2", "available", sqlmock.AnyArg(), "l1", "5", "available").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)SELECT .+ FROM listings WHERE id`).WillReturnRows(listingRow("3", "available"))
	mock.ExpectExec(`UPDATE listings SET quantity = \?, status = \?`).
		WithArgs("0", "reserved", sqlmock.AnyArg(), "l1", "3", "available").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Listings.Reserve(context.Background(), "l1", mustDec(t, "3"), repos.Now())
	if err != nil || !ok {
		t.Fatalf("reserve = %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReserve_GivesUpUnderContention(t *testing.T) {
	store, mock := mockStore(t)

	for i := 0; i < 5; i++ {
		mock.ExpectQuery(`(?s)SELECT .+ FROM listings WHERE id`).WillReturnRows(listingRow("5", "available"))
		mock.ExpectExec(`UPDATE listings SET quantity`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	_, err := store.Listings.Reserve(context.Background(), "l1", mustDec(t, "1"), repos.Now())
	if !errors.Is(err, repos.ErrContended) {
		t.Fatalf("err = %v, want ErrContended", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
