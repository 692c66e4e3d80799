package core

// Summarize derives the balance of a match from its carry-over and line items.
// It has no side effects and tolerates empty inputs.
func Summarize(carryOver Money, participants []Participant, expenses []Expense) Balance {
	b := Balance{
		TotalParticipants:  len(participants),
		CarryOverAmount:    carryOver,
		ExpensesByCategory: make(map[string]Money),
	}

	for _, p := range participants {
		b.TotalExpected = b.TotalExpected.Add(p.Amount)
		if p.Paid {
			b.PaidParticipants++
			b.TotalCollected = b.TotalCollected.Add(p.Amount)
		}
	}
	b.PendingParticipants = b.TotalParticipants - b.PaidParticipants
	b.PendingCollection = b.TotalExpected.Sub(b.TotalCollected)

	for _, e := range expenses {
		b.TotalExpenses = b.TotalExpenses.Add(e.Amount)
		category := NormalizeCategory(e.Category)
		b.ExpensesByCategory[category] = b.ExpensesByCategory[category].Add(e.Amount)
	}

	b.AvailableAmount = b.TotalCollected.Add(carryOver)
	b.Balance = b.AvailableAmount.Sub(b.TotalExpenses)
	return b
}

// Settle computes the totals frozen into a match when it ends. The match's own
// carry-over is folded into the collected figure.
func Settle(m Match, participants []Participant, expenses []Expense) MatchTotals {
	b := Summarize(m.CarryOver, participants, expenses)
	return MatchTotals{
		TotalCollected: b.AvailableAmount,
		TotalExpenses:  b.TotalExpenses,
		FinalBalance:   b.Balance,
	}
}

// NewSummary assembles the summary returned to callers.
func NewSummary(m Match, participants []Participant, expenses []Expense) FinancialSummary {
	if participants == nil {
		participants = []Participant{}
	}
	if expenses == nil {
		expenses = []Expense{}
	}
	return FinancialSummary{
		Match:        m,
		Balance:      Summarize(m.CarryOver, participants, expenses),
		Participants: participants,
		Expenses:     expenses,
	}
}
