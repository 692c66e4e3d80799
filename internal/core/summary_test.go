package core

import (
	"testing"
	"time"
)

func TestFinancialSummaryClone(t *testing.T) {
	ended := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	paid := ended.Add(-time.Hour)
	orig := FinancialSummary{
		Match:        Match{ID: "m1", EndedAt: &ended},
		Balance:      Balance{ExpensesByCategory: map[string]Money{"Field": {Cents: 500}}},
		Participants: []Participant{{ID: "p1", Name: "Alice", PaymentDate: &paid}},
		Expenses:     []Expense{{ID: "e1", Amount: Money{Cents: 500}}},
	}

	c := orig.Clone()
	c.Match.EndedAt = nil
	c.ExpensesByCategory["Field"] = Money{Cents: 1}
	c.Participants[0].Name = "Bob"
	*c.Participants[0].PaymentDate = ended
	c.Expenses[0].Amount = Money{Cents: 1}

	if orig.Match.EndedAt == nil || !orig.Match.EndedAt.Equal(ended) {
		t.Errorf("match end time changed: %v", orig.Match.EndedAt)
	}
	if orig.ExpensesByCategory["Field"].Cents != 500 {
		t.Errorf("category totals shared: %v", orig.ExpensesByCategory)
	}
	if orig.Participants[0].Name != "Alice" || !orig.Participants[0].PaymentDate.Equal(paid) {
		t.Errorf("participants shared: %+v", orig.Participants[0])
	}
	if orig.Expenses[0].Amount.Cents != 500 {
		t.Errorf("expenses shared: %+v", orig.Expenses[0])
	}

	empty := FinancialSummary{}.Clone()
	if empty.Participants != nil || empty.Expenses != nil || empty.ExpensesByCategory != nil {
		t.Errorf("clone of empty summary should stay empty: %+v", empty)
	}
}
