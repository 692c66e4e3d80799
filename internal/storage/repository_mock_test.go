package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"matchfund/internal/core"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepository(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepositoryFromDB(db), mock
}

func TestSQLiteRepository_DriverErrorsAreStorageErrors(t *testing.T) {
	repo, mock := newMockRepository(t)
	driverErr := errors.New("disk I/O error")

	mock.ExpectQuery("FROM matches WHERE id").WithArgs("m1").WillReturnError(driverErr)

	_, err := repo.GetMatch(context.Background(), "m1")
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if !errors.Is(err, driverErr) {
		t.Fatalf("driver error should be reachable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteRepository_MissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("FROM participants WHERE id").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetParticipant(context.Background(), "p1")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, core.ErrStorage) {
		t.Fatalf("missing row should not be a storage failure")
	}
}

func TestSQLiteRepository_FailedBeginRollsNothing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	err := repo.InsertExpense(context.Background(), core.Expense{ID: "e1", MatchID: "m1"})
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteRepository_EndMatchRollsBackOnEnqueueFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "name", "match_date", "is_active", "carry_over_cents", "total_collected_cents",
		"total_expenses_cents", "final_balance_cents", "created_at", "ended_at", "created_by_email", "created_by_name"}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM matches WHERE id").WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("m1", "Friday", "2025-03-01", 1, 0, 0, 0, 0,
			formatTime(created), nil, "", ""))
	mock.ExpectQuery("FROM participants").WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM expenses").WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE matches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO export_queue").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.EndMatch(context.Background(), "m1", created.Add(time.Hour), core.Settle)
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
