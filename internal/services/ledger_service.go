package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matchfund/internal/amqp"
	"matchfund/internal/cache"
	"matchfund/internal/core"
	"matchfund/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MatchEventPublisher announces ended matches to the export worker.
type MatchEventPublisher interface {
	PublishMatchEnded(ctx context.Context, msg *amqp.MatchEndedMessage) error
}

type AddParticipantInput struct {
	MatchID string
	Name    string
	Amount  core.Money
}

type AddExpenseInput struct {
	MatchID     string
	Category    string
	Description string
	Amount      core.Money
	ExpenseDate core.Date
}

// LedgerService is the entry point for every ledger operation. Summaries are
// recomputed from stored line items on each read; only summaries of ended
// matches, which cannot change, are cached.
type LedgerService struct {
	store     storage.Store
	lifecycle *MatchLifecycle
	publisher MatchEventPublisher
	summaries *cache.LRUCache[core.FinancialSummary]
	now       func() time.Time
	newID     func() string
}

type Option func(*LedgerService)

// WithPublisher enables match.ended events. Publish failures are logged only.
func WithPublisher(p MatchEventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithSummaryCache(c *cache.LRUCache[core.FinancialSummary]) Option {
	return func(s *LedgerService) { s.summaries = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
		s.lifecycle.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) {
		s.newID = newID
		s.lifecycle.newID = newID
	}
}

func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		lifecycle: NewMatchLifecycle(store),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) CreateMatch(ctx context.Context, in CreateMatchInput) (core.Match, error) {
	m, closed, err := s.lifecycle.CreateMatch(ctx, in)
	if err != nil {
		return core.Match{}, err
	}
	for _, c := range closed {
		s.publishEnded(ctx, c)
	}
	return m, nil
}

func (s *LedgerService) GetCurrentMatch(ctx context.Context) (*core.Match, error) {
	return s.lifecycle.GetCurrentMatch(ctx)
}

func (s *LedgerService) GetMatch(ctx context.Context, id string) (core.Match, error) {
	return s.store.GetMatch(ctx, id)
}

// ListMatches returns every match ordered by date, newest first.
func (s *LedgerService) ListMatches(ctx context.Context) ([]core.Match, error) {
	return s.store.ListMatches(ctx)
}

// EndMatch closes the match and returns its frozen summary.
func (s *LedgerService) EndMatch(ctx context.Context, id string) (core.Match, core.FinancialSummary, error) {
	m, err := s.lifecycle.EndMatch(ctx, id)
	if err != nil {
		return core.Match{}, core.FinancialSummary{}, err
	}
	s.publishEnded(ctx, m)

	summary, err := s.GetFinancialSummary(ctx, m.ID)
	if err != nil {
		return core.Match{}, core.FinancialSummary{}, err
	}
	return m, summary, nil
}

func (s *LedgerService) GetLastMatchBalance(ctx context.Context) (core.Money, error) {
	return s.lifecycle.GetLastMatchBalance(ctx)
}

// ResolveMatchID returns id, or the active match id when id is empty.
func (s *LedgerService) ResolveMatchID(ctx context.Context, id string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	m, err := s.store.GetActiveMatch(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return "", core.ErrNoActiveMatch
	}
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// AddParticipant validates the input before resolving the target match.
func (s *LedgerService) AddParticipant(ctx context.Context, in AddParticipantInput) (core.Participant, error) {
	now := s.now().UTC()
	p := core.Participant{
		Name:        strings.TrimSpace(in.Name),
		Amount:      in.Amount,
		DateAdded:   now,
		LastUpdated: now,
	}
	if err := p.Validate(); err != nil {
		return core.Participant{}, err
	}

	matchID, err := s.ResolveMatchID(ctx, in.MatchID)
	if err != nil {
		return core.Participant{}, err
	}
	p.ID = s.newID()
	p.MatchID = matchID

	if err := s.store.InsertParticipant(ctx, p); err != nil {
		return core.Participant{}, fmt.Errorf("add participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns the participants of the match, oldest first.
func (s *LedgerService) ListParticipants(ctx context.Context, matchID string) ([]core.Participant, error) {
	return s.store.ListParticipants(ctx, matchID)
}

func (s *LedgerService) UpdateParticipantPayment(ctx context.Context, id string, paid bool) (core.Participant, error) {
	p, err := s.store.SetParticipantPaid(ctx, id, paid, s.now())
	if err != nil {
		return core.Participant{}, fmt.Errorf("update participant payment: %w", err)
	}
	return p, nil
}

func (s *LedgerService) DeleteParticipant(ctx context.Context, id string) error {
	if err := s.store.DeleteParticipant(ctx, id); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

// MarkAllParticipantsPaid marks every participant of the match as paid and
// returns how many were updated.
func (s *LedgerService) MarkAllParticipantsPaid(ctx context.Context, matchID string) (int64, error) {
	return s.markAll(ctx, matchID, true)
}

// MarkAllParticipantsPending is the bulk inverse of MarkAllParticipantsPaid.
func (s *LedgerService) MarkAllParticipantsPending(ctx context.Context, matchID string) (int64, error) {
	return s.markAll(ctx, matchID, false)
}

func (s *LedgerService) markAll(ctx context.Context, matchID string, paid bool) (int64, error) {
	id, err := s.ResolveMatchID(ctx, matchID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllParticipants(ctx, id, paid, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all participants: %w", err)
	}
	slog.InfoContext(ctx, "Participants updated in bulk", "match_id", id, "paid", paid, "count", n)
	return n, nil
}

func (s *LedgerService) AddExpense(ctx context.Context, in AddExpenseInput) (core.Expense, error) {
	now := s.now().UTC()
	e := core.Expense{
		Category:    core.NormalizeCategory(in.Category),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		ExpenseDate: in.ExpenseDate,
		DateAdded:   now,
	}
	if e.ExpenseDate.IsZero() {
		e.ExpenseDate = core.DateOf(s.now())
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	matchID, err := s.ResolveMatchID(ctx, in.MatchID)
	if err != nil {
		return core.Expense{}, err
	}
	e.ID = s.newID()
	e.MatchID = matchID

	if err := s.store.InsertExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns the expenses of the match, newest expense date first.
func (s *LedgerService) ListExpenses(ctx context.Context, matchID string) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, matchID)
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// GetFinancialSummary computes the match's balance from its stored line items.
func (s *LedgerService) GetFinancialSummary(ctx context.Context, matchID string) (core.FinancialSummary, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return core.FinancialSummary{}, err
	}

	if m.Ended() && s.summaries != nil {
		if cached, ok := s.summaries.Get(m.ID); ok {
			return cached.Clone(), nil
		}
	}

	var (
		participants []core.Participant
		expenses     []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		participants, err = s.store.ListParticipants(gctx, m.ID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, m.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.FinancialSummary{}, fmt.Errorf("load match %s: %w", m.ID, err)
	}

	summary := core.NewSummary(m, participants, expenses)
	if m.Ended() && s.summaries != nil {
		s.summaries.Set(m.ID, summary.Clone())
	}
	return summary, nil
}

// CacheStats reports the ended-summary cache, or zero values when disabled.
func (s *LedgerService) CacheStats() cache.Stats {
	if s.summaries == nil {
		return cache.Stats{}
	}
	return s.summaries.Stats()
}

func (s *LedgerService) publishEnded(ctx context.Context, m core.Match) {
	if s.publisher == nil {
		return
	}
	endedAt := s.now().UTC()
	if m.EndedAt != nil {
		endedAt = *m.EndedAt
	}
	msg := amqp.NewMatchEndedMessage(m.ID, m.Name, m.FinalBalance.Cents, endedAt)
	if err := s.publisher.PublishMatchEnded(ctx, msg); err != nil {
		// The export queue row written with the match still gets processed.
		slog.ErrorContext(ctx, "Failed to publish match ended message", "match_id", m.ID, "error", err)
	}
}
