package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"matchfund/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testMatch(id string, created time.Time) core.Match {
	return core.Match{
		ID:        id,
		Name:      "Match " + id,
		Date:      core.DateOf(created),
		Active:    true,
		CreatedAt: created,
	}
}

func TestSQLiteRepository_MatchLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.GetActiveMatch(ctx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without matches, got %v", err)
	}

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := repo.InsertParticipant(ctx, core.Participant{
		ID: "p1", MatchID: "m1", Name: "Alice", Amount: core.Money{Cents: 10000},
		Paid: true, PaymentDate: &t0, DateAdded: t0, LastUpdated: t0,
	}); err != nil {
		t.Fatalf("InsertParticipant: %v", err)
	}
	if err := repo.InsertExpense(ctx, core.Expense{
		ID: "e1", MatchID: "m1", Category: "Equipment", Description: "Balls",
		Amount: core.Money{Cents: 3000}, ExpenseDate: core.DateOf(t0), DateAdded: t0,
	}); err != nil {
		t.Fatalf("InsertExpense: %v", err)
	}

	active, err := repo.GetActiveMatch(ctx)
	if err != nil || active.ID != "m1" {
		t.Fatalf("GetActiveMatch = %+v, %v", active, err)
	}

	ended, err := repo.EndMatch(ctx, "m1", t0.Add(time.Hour), core.Settle)
	if err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if ended.Active || ended.EndedAt == nil {
		t.Fatalf("match should be closed: %+v", ended)
	}
	if ended.FinalBalance.Cents != 7000 || ended.TotalCollected.Cents != 10000 || ended.TotalExpenses.Cents != 3000 {
		t.Fatalf("unexpected frozen totals: %+v", ended)
	}

	if _, err := repo.EndMatch(ctx, "m1", t0.Add(2*time.Hour), core.Settle); !errors.Is(err, core.ErrMatchEnded) {
		t.Fatalf("ending twice should fail with ErrMatchEnded, got %v", err)
	}

	last, err := repo.LastEndedMatch(ctx)
	if err != nil || last.ID != "m1" || last.FinalBalance.Cents != 7000 {
		t.Fatalf("LastEndedMatch = %+v, %v", last, err)
	}

	stats, err := repo.ExportStats(ctx)
	if err != nil || stats.Pending != 1 {
		t.Fatalf("expected one pending export, got %+v, %v", stats, err)
	}
}

func TestSQLiteRepository_CreateMatchClosesPrevious(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch m1: %v", err)
	}
	closed, err := repo.CreateMatch(ctx, testMatch("m2", t0.Add(time.Hour)), core.Settle)
	if err != nil {
		t.Fatalf("CreateMatch m2: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "m1" {
		t.Fatalf("expected m1 to be closed, got %+v", closed)
	}

	m1, err := repo.GetMatch(ctx, "m1")
	if err != nil || m1.Active || m1.EndedAt == nil {
		t.Fatalf("m1 should be ended: %+v, %v", m1, err)
	}

	matches, err := repo.ListMatches(ctx)
	if err != nil || len(matches) != 2 {
		t.Fatalf("ListMatches = %v, %v", matches, err)
	}
	if matches[0].ID != "m2" {
		t.Fatalf("newest match should come first, got %s", matches[0].ID)
	}
}

func TestSQLiteRepository_Participants(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	add := func(id, name string, at time.Time) error {
		return repo.InsertParticipant(ctx, core.Participant{
			ID: id, MatchID: "m1", Name: name, Amount: core.Money{Cents: 5000}, DateAdded: at, LastUpdated: at,
		})
	}
	if err := add("p1", "Alice", t0); err != nil {
		t.Fatalf("add Alice: %v", err)
	}
	if err := add("p2", "Bob", t0.Add(time.Minute)); err != nil {
		t.Fatalf("add Bob: %v", err)
	}
	if err := add("p3", " alice ", t0.Add(2*time.Minute)); !errors.Is(err, core.ErrDuplicateParticipant) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	paidAt := t0.Add(time.Hour)
	p, err := repo.SetParticipantPaid(ctx, "p1", true, paidAt)
	if err != nil || !p.Paid || p.PaymentDate == nil || !p.PaymentDate.Equal(paidAt) {
		t.Fatalf("SetParticipantPaid = %+v, %v", p, err)
	}

	markedAt := paidAt.Add(time.Hour)
	n, err := repo.MarkAllParticipants(ctx, "m1", true, markedAt)
	if err != nil || n != 2 {
		t.Fatalf("MarkAllParticipants = %d, %v", n, err)
	}
	list, err := repo.ListParticipants(ctx, "m1")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListParticipants = %v, %v", list, err)
	}
	for _, p := range list {
		if !p.Paid || p.PaymentDate == nil || !p.PaymentDate.Equal(markedAt) {
			t.Fatalf("%s should be paid at %v, got %+v", p.Name, markedAt, p)
		}
	}

	n, err = repo.MarkAllParticipants(ctx, "m1", false, paidAt)
	if err != nil || n != 2 {
		t.Fatalf("MarkAllParticipants pending = %d, %v", n, err)
	}
	p, _ = repo.GetParticipant(ctx, "p1")
	if p.Paid || p.PaymentDate != nil {
		t.Fatalf("payment date should be cleared, got %+v", p)
	}

	if err := repo.DeleteParticipant(ctx, "p2"); err != nil {
		t.Fatalf("DeleteParticipant: %v", err)
	}
	if err := repo.DeleteParticipant(ctx, "p2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_EndedMatchIsFrozen(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := repo.InsertExpense(ctx, core.Expense{
		ID: "e1", MatchID: "m1", Category: core.DefaultCategory, Description: "Water",
		Amount: core.Money{Cents: 500}, ExpenseDate: core.DateOf(t0), DateAdded: t0,
	}); err != nil {
		t.Fatalf("InsertExpense: %v", err)
	}
	if _, err := repo.EndMatch(ctx, "m1", t0.Add(time.Hour), core.Settle); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}

	err := repo.InsertExpense(ctx, core.Expense{
		ID: "e2", MatchID: "m1", Category: core.DefaultCategory, Description: "Late",
		Amount: core.Money{Cents: 100}, ExpenseDate: core.DateOf(t0), DateAdded: t0,
	})
	if !errors.Is(err, core.ErrMatchEnded) {
		t.Fatalf("expected ErrMatchEnded, got %v", err)
	}
	if err := repo.DeleteExpense(ctx, "e1"); !errors.Is(err, core.ErrMatchEnded) {
		t.Fatalf("expected ErrMatchEnded on delete, got %v", err)
	}
	if _, err := repo.MarkAllParticipants(ctx, "m1", true, t0); !errors.Is(err, core.ErrMatchEnded) {
		t.Fatalf("expected ErrMatchEnded on bulk update, got %v", err)
	}
	if err := repo.InsertExpense(ctx, core.Expense{ID: "e3", MatchID: "missing", Description: "x", Amount: core.Money{Cents: 1}}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown match, got %v", err)
	}
}

func TestSQLiteRepository_ExpenseOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	expenses := []core.Expense{
		{ID: "old", ExpenseDate: core.NewDate(2025, 2, 1), DateAdded: t0},
		{ID: "new", ExpenseDate: core.NewDate(2025, 3, 1), DateAdded: t0},
		{ID: "newer-added", ExpenseDate: core.NewDate(2025, 3, 1), DateAdded: t0.Add(time.Minute)},
	}
	for _, e := range expenses {
		e.MatchID = "m1"
		e.Category = core.DefaultCategory
		e.Description = e.ID
		e.Amount = core.Money{Cents: 100}
		if err := repo.InsertExpense(ctx, e); err != nil {
			t.Fatalf("InsertExpense %s: %v", e.ID, err)
		}
	}

	got, err := repo.ListExpenses(ctx, "m1")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	want := []string{"newer-added", "new", "old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestSQLiteRepository_ExportQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.CreateMatch(ctx, testMatch("m1", t0), core.Settle); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if _, err := repo.EndMatch(ctx, "m1", t0, core.Settle); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}

	jobs, err := repo.DequeueExports(ctx, 10)
	if err != nil || len(jobs) != 1 || jobs[0].MatchID != "m1" {
		t.Fatalf("DequeueExports = %+v, %v", jobs, err)
	}
	id := jobs[0].ID

	if err := repo.MarkExportProcessing(ctx, id); err != nil {
		t.Fatalf("MarkExportProcessing: %v", err)
	}
	if err := repo.MarkExportProcessing(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("claiming twice should fail, got %v", err)
	}
	if err := repo.IncrementExportAttempt(ctx, id, "sheets down"); err != nil {
		t.Fatalf("IncrementExportAttempt: %v", err)
	}
	jobs, _ = repo.DequeueExports(ctx, 10)
	if len(jobs) != 1 || jobs[0].Attempts != 1 || jobs[0].LastError != "sheets down" {
		t.Fatalf("unexpected job after retry: %+v", jobs)
	}

	if err := repo.MarkExportFailed(ctx, id, "gave up"); err != nil {
		t.Fatalf("MarkExportFailed: %v", err)
	}
	n, err := repo.RetryFailedExports(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailedExports = %d, %v", n, err)
	}

	if err := repo.MarkExportComplete(ctx, id); err != nil {
		t.Fatalf("MarkExportComplete: %v", err)
	}
	removed, err := repo.CleanupCompletedExports(ctx, time.Now().Add(time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("CleanupCompletedExports = %d, %v", removed, err)
	}
	stats, _ := repo.ExportStats(ctx)
	if stats != (ExportStats{}) {
		t.Fatalf("queue should be empty, got %+v", stats)
	}
}
