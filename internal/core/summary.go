package core

import (
	"sort"
	"time"
)

// Balance holds the figures derived from a match's line items.
type Balance struct {
	TotalParticipants   int              `json:"totalParticipants"`
	PaidParticipants    int              `json:"paidParticipants"`
	PendingParticipants int              `json:"pendingParticipants"`
	TotalExpected       Money            `json:"totalExpected"`
	TotalCollected      Money            `json:"totalCollected"`
	PendingCollection   Money            `json:"pendingCollection"`
	TotalExpenses       Money            `json:"totalExpenses"`
	CarryOverAmount     Money            `json:"carryOverAmount"`
	AvailableAmount     Money            `json:"availableAmount"`
	Balance             Money            `json:"balance"`
	ExpensesByCategory  map[string]Money `json:"expensesByCategory"`
}

// FinancialSummary is a match together with its line items and the balance
// computed from them.
type FinancialSummary struct {
	Match Match `json:"match"`
	Balance
	Participants []Participant `json:"participants"`
	Expenses     []Expense     `json:"expenses"`
}

// Clone returns a deep copy of the summary.
func (s FinancialSummary) Clone() FinancialSummary {
	out := s
	out.Match.EndedAt = cloneTime(s.Match.EndedAt)
	if s.ExpensesByCategory != nil {
		out.ExpensesByCategory = make(map[string]Money, len(s.ExpensesByCategory))
		for k, v := range s.ExpensesByCategory {
			out.ExpensesByCategory[k] = v
		}
	}
	if s.Participants != nil {
		out.Participants = make([]Participant, len(s.Participants))
		for i, p := range s.Participants {
			p.PaymentDate = cloneTime(p.PaymentDate)
			out.Participants[i] = p
		}
	}
	if s.Expenses != nil {
		out.Expenses = append([]Expense(nil), s.Expenses...)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Categories returns the category breakdown sorted by descending amount,
// then by name.
func (b Balance) Categories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(b.ExpensesByCategory))
	for name, amount := range b.ExpensesByCategory {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BalanceStatus labels a balance for reports.
type BalanceStatus string

const (
	StatusSurplus    BalanceStatus = "Surplus"
	StatusOverBudget BalanceStatus = "Over Budget"
	StatusBalanced   BalanceStatus = "Balanced"
)

func (b Balance) Status() BalanceStatus {
	switch {
	case b.Balance.Cents > 0:
		return StatusSurplus
	case b.Balance.Cents < 0:
		return StatusOverBudget
	default:
		return StatusBalanced
	}
}
