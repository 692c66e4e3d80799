package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matchfund/internal/core"
	"matchfund/internal/storage"

	"github.com/google/uuid"
)

// CreateMatchInput carries the caller-supplied fields of a new match.
type CreateMatchInput struct {
	Name      string
	Date      core.Date
	CarryOver core.Money
	Creator   *core.Principal
}

// MatchLifecycle enforces the single-active-match rule and the
// active -> ended transition. "Current match" is always a store query.
type MatchLifecycle struct {
	store storage.MatchStore
	now   func() time.Time
	newID func() string
}

func NewMatchLifecycle(store storage.MatchStore) *MatchLifecycle {
	return &MatchLifecycle{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateMatch settles and closes the active match, if any, then inserts the
// new match as the only active one. Totals start seeded with the carry-over.
// It returns the new match and the matches it closed.
func (l *MatchLifecycle) CreateMatch(ctx context.Context, in CreateMatchInput) (core.Match, []core.Match, error) {
	now := l.now().UTC()
	m := core.Match{
		ID:             l.newID(),
		Name:           strings.TrimSpace(in.Name),
		Date:           in.Date,
		Active:         true,
		CarryOver:      in.CarryOver,
		TotalCollected: in.CarryOver,
		FinalBalance:   in.CarryOver,
		CreatedAt:      now,
	}
	if in.Creator != nil {
		m.CreatedByEmail = in.Creator.Email
		m.CreatedByName = in.Creator.Name
	}
	if err := m.Validate(); err != nil {
		return core.Match{}, nil, err
	}

	closed, err := l.store.CreateMatch(ctx, m, core.Settle)
	if err != nil {
		return core.Match{}, nil, fmt.Errorf("create match: %w", err)
	}

	slog.InfoContext(ctx, "Match created",
		"id", m.ID,
		"name", m.Name,
		"date", m.Date.String(),
		"carry_over", m.CarryOver.String(),
		"closed_matches", len(closed))

	return m, closed, nil
}

// GetCurrentMatch returns the active match, or nil when there is none.
func (l *MatchLifecycle) GetCurrentMatch(ctx context.Context) (*core.Match, error) {
	m, err := l.store.GetActiveMatch(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// EndMatch freezes the match's settled totals and closes it.
func (l *MatchLifecycle) EndMatch(ctx context.Context, id string) (core.Match, error) {
	m, err := l.store.EndMatch(ctx, id, l.now().UTC(), core.Settle)
	if err != nil {
		return core.Match{}, fmt.Errorf("end match: %w", err)
	}

	slog.InfoContext(ctx, "Match ended",
		"id", m.ID,
		"total_collected", m.TotalCollected.String(),
		"total_expenses", m.TotalExpenses.String(),
		"final_balance", m.FinalBalance.String())

	return m, nil
}

// GetLastMatchBalance returns the final balance of the most recently ended
// match, or zero when no match has ended.
func (l *MatchLifecycle) GetLastMatchBalance(ctx context.Context) (core.Money, error) {
	m, err := l.store.LastEndedMatch(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, err
	}
	return m.FinalBalance, nil
}
