// Package memory is an in-process storage.Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"matchfund/internal/core"
	"matchfund/internal/storage"
)

type Store struct {
	mu           sync.Mutex
	matches      []core.Match
	participants []core.Participant
	expenses     []core.Expense
	exports      []storage.ExportJob
	nextExportID int64
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateMatch(_ context.Context, m core.Match, settle storage.SettleFunc) ([]core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.matches {
		if existing.ID == m.ID {
			return nil, fmt.Errorf("match %s already exists", m.ID)
		}
	}

	var closed []core.Match
	for i := range s.matches {
		if !s.matches[i].Active {
			continue
		}
		s.closeLocked(i, m.CreatedAt, settle)
		closed = append(closed, s.matches[i])
	}

	m.Active = true
	m.EndedAt = nil
	s.matches = append(s.matches, m)
	return closed, nil
}

func (s *Store) GetMatch(_ context.Context, id string) (core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.matchIndex(id)
	if i < 0 {
		return core.Match{}, fmt.Errorf("match %s: %w", id, core.ErrNotFound)
	}
	return s.matches[i], nil
}

func (s *Store) GetActiveMatch(_ context.Context) (core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.matches) - 1; i >= 0; i-- {
		if s.matches[i].Active {
			return s.matches[i], nil
		}
	}
	return core.Match{}, fmt.Errorf("active match: %w", core.ErrNotFound)
}

func (s *Store) ListMatches(_ context.Context) ([]core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Match{}, s.matches...)
	// Insertion order breaks ties, newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) EndMatch(_ context.Context, id string, endedAt time.Time, settle storage.SettleFunc) (core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.matchIndex(id)
	if i < 0 {
		return core.Match{}, fmt.Errorf("match %s: %w", id, core.ErrNotFound)
	}
	if s.matches[i].Ended() {
		return core.Match{}, fmt.Errorf("match %s: %w", id, core.ErrMatchEnded)
	}
	s.closeLocked(i, endedAt, settle)
	return s.matches[i], nil
}

func (s *Store) LastEndedMatch(_ context.Context) (core.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		last  core.Match
		found bool
	)
	for _, m := range s.matches {
		if m.Active || m.EndedAt == nil {
			continue
		}
		if !found || !m.EndedAt.Before(*last.EndedAt) {
			last, found = m, true
		}
	}
	if !found {
		return core.Match{}, fmt.Errorf("last ended match: %w", core.ErrNotFound)
	}
	return last, nil
}

func (s *Store) closeLocked(i int, endedAt time.Time, settle storage.SettleFunc) {
	m := s.matches[i]
	totals := settle(m, s.participantsLocked(m.ID), s.expensesLocked(m.ID))
	at := endedAt.UTC()
	m.Active = false
	m.EndedAt = &at
	m.TotalCollected = totals.TotalCollected
	m.TotalExpenses = totals.TotalExpenses
	m.FinalBalance = totals.FinalBalance
	s.matches[i] = m

	s.nextExportID++
	s.exports = append(s.exports, storage.ExportJob{
		ID:        s.nextExportID,
		MatchID:   m.ID,
		Status:    storage.ExportPending,
		CreatedAt: at,
		UpdatedAt: at,
	})
}

func (s *Store) matchIndex(id string) int {
	for i := range s.matches {
		if s.matches[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) requireActiveLocked(matchID string) error {
	i := s.matchIndex(matchID)
	if i < 0 {
		return fmt.Errorf("match %s: %w", matchID, core.ErrNotFound)
	}
	if s.matches[i].Ended() {
		return fmt.Errorf("match %s: %w", matchID, core.ErrMatchEnded)
	}
	return nil
}

func (s *Store) InsertParticipant(_ context.Context, p core.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(p.MatchID); err != nil {
		return err
	}
	key := core.NameKey(p.Name)
	for _, existing := range s.participants {
		if existing.MatchID == p.MatchID && core.NameKey(existing.Name) == key {
			return fmt.Errorf("participant %q: %w", p.Name, core.ErrDuplicateParticipant)
		}
	}
	s.participants = append(s.participants, p)
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (core.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.participantIndex(id)
	if i < 0 {
		return core.Participant{}, fmt.Errorf("participant %s: %w", id, core.ErrNotFound)
	}
	return s.participants[i], nil
}

func (s *Store) ListParticipants(_ context.Context, matchID string) ([]core.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked(matchID), nil
}

func (s *Store) participantsLocked(matchID string) []core.Participant {
	out := []core.Participant{}
	for _, p := range s.participants {
		if p.MatchID == matchID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateAdded.Before(out[j].DateAdded) })
	return out
}

func (s *Store) participantIndex(id string) int {
	for i := range s.participants {
		if s.participants[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) SetParticipantPaid(_ context.Context, id string, paid bool, at time.Time) (core.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.participantIndex(id)
	if i < 0 {
		return core.Participant{}, fmt.Errorf("participant %s: %w", id, core.ErrNotFound)
	}
	p := s.participants[i]
	if err := s.requireActiveLocked(p.MatchID); err != nil {
		return core.Participant{}, err
	}
	setPaid(&p, paid, at.UTC())
	s.participants[i] = p
	return p, nil
}

func setPaid(p *core.Participant, paid bool, at time.Time) {
	switch {
	case paid && (!p.Paid || p.PaymentDate == nil):
		p.PaymentDate = &at
	case !paid:
		p.PaymentDate = nil
	}
	p.Paid = paid
	p.LastUpdated = at
}

func (s *Store) DeleteParticipant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.participantIndex(id)
	if i < 0 {
		return fmt.Errorf("participant %s: %w", id, core.ErrNotFound)
	}
	if err := s.requireActiveLocked(s.participants[i].MatchID); err != nil {
		return err
	}
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
	return nil
}

func (s *Store) MarkAllParticipants(_ context.Context, matchID string, paid bool, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(matchID); err != nil {
		return 0, err
	}
	at = at.UTC()
	var n int64
	for i := range s.participants {
		if s.participants[i].MatchID != matchID {
			continue
		}
		p := &s.participants[i]
		p.Paid = paid
		p.PaymentDate = nil
		if paid {
			paidAt := at
			p.PaymentDate = &paidAt
		}
		p.LastUpdated = at
		n++
	}
	return n, nil
}

func (s *Store) InsertExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(e.MatchID); err != nil {
		return err
	}
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, matchID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expensesLocked(matchID), nil
}

func (s *Store) expensesLocked(matchID string) []core.Expense {
	out := []core.Expense{}
	for i := len(s.expenses) - 1; i >= 0; i-- {
		if s.expenses[i].MatchID == matchID {
			out = append(out, s.expenses[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpenseDate.Equal(out[j].ExpenseDate.Time) {
			return out[i].ExpenseDate.After(out[j].ExpenseDate.Time)
		}
		return out[i].DateAdded.After(out[j].DateAdded)
	})
	return out
}

func (s *Store) expenseIndex(id string) int {
	for i := range s.expenses {
		if s.expenses[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err := s.requireActiveLocked(s.expenses[i].MatchID); err != nil {
		return err
	}
	s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
	return nil
}
