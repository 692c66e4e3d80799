package storage

import (
	"context"
	"time"

	"matchfund/internal/core"
)

// SettleFunc computes the frozen totals of a match from its line items. The
// store calls it inside the transaction that closes the match.
type SettleFunc func(m core.Match, participants []core.Participant, expenses []core.Expense) core.MatchTotals

// MatchStore persists matches and their lifecycle transitions.
type MatchStore interface {
	// CreateMatch settles and closes every active match, enqueues their
	// exports and inserts m as the only active match, all in one transaction.
	// It returns the matches it closed.
	CreateMatch(ctx context.Context, m core.Match, settle SettleFunc) ([]core.Match, error)
	GetMatch(ctx context.Context, id string) (core.Match, error)
	// GetActiveMatch returns core.ErrNotFound when no match is active.
	GetActiveMatch(ctx context.Context) (core.Match, error)
	// ListMatches orders by match date, newest first.
	ListMatches(ctx context.Context) ([]core.Match, error)
	// EndMatch freezes the totals returned by settle, closes the match and
	// enqueues its export.
	EndMatch(ctx context.Context, id string, endedAt time.Time, settle SettleFunc) (core.Match, error)
	// LastEndedMatch returns core.ErrNotFound when no match has ended.
	LastEndedMatch(ctx context.Context) (core.Match, error)
}

// ParticipantStore persists participants. Mutations fail with
// core.ErrMatchEnded when the owning match is closed.
type ParticipantStore interface {
	InsertParticipant(ctx context.Context, p core.Participant) error
	GetParticipant(ctx context.Context, id string) (core.Participant, error)
	// ListParticipants orders by date added, oldest first.
	ListParticipants(ctx context.Context, matchID string) ([]core.Participant, error)
	SetParticipantPaid(ctx context.Context, id string, paid bool, at time.Time) (core.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
	// MarkAllParticipants sets the paid flag of every participant of the match
	// and returns how many participants it touched. Marking paid stamps every
	// participant with at, including those already paid.
	MarkAllParticipants(ctx context.Context, matchID string, paid bool, at time.Time) (int64, error)
}

// ExpenseStore persists expenses. Mutations fail with core.ErrMatchEnded when
// the owning match is closed.
type ExpenseStore interface {
	InsertExpense(ctx context.Context, e core.Expense) error
	// ListExpenses orders by expense date then date added, newest first.
	ListExpenses(ctx context.Context, matchID string) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// ExportQueue is the outbox of ended matches waiting to be exported.
type ExportQueue interface {
	DequeueExports(ctx context.Context, limit int) ([]ExportJob, error)
	MarkExportProcessing(ctx context.Context, id int64) error
	MarkExportComplete(ctx context.Context, id int64) error
	IncrementExportAttempt(ctx context.Context, id int64, lastError string) error
	MarkExportFailed(ctx context.Context, id int64, lastError string) error
	ResetStaleExports(ctx context.Context) error
	CleanupCompletedExports(ctx context.Context, before time.Time) (int64, error)
	RetryFailedExports(ctx context.Context) (int64, error)
	ExportStats(ctx context.Context) (ExportStats, error)
}

// Store is everything the ledger needs from persistence.
type Store interface {
	MatchStore
	ParticipantStore
	ExpenseStore
	ExportQueue
	Close() error
}

// Export job states.
const (
	ExportPending    = "pending"
	ExportProcessing = "processing"
	ExportCompleted  = "completed"
	ExportFailed     = "failed"
)

// ExportJob is one queued export of an ended match.
type ExportJob struct {
	ID        int64
	MatchID   string
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExportStats counts queue rows per status.
type ExportStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
