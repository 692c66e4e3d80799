package google

import (
	"fmt"
	"strings"
	"time"

	"matchfund/internal/core"
)

var columns = []string{
	"Match ID", "Name", "Date", "Ended At", "Participants", "Paid",
	"Collected", "Carry-over", "Expenses", "Final Balance", "Status",
}

// lastColumn is the letter of the final entry in columns.
const lastColumn = "K"

func headerRow() []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

func summaryRow(s core.FinancialSummary) []any {
	endedAt := ""
	if s.Match.EndedAt != nil {
		endedAt = s.Match.EndedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		s.Match.ID,
		s.Match.Name,
		s.Match.Date.String(),
		endedAt,
		s.TotalParticipants,
		s.PaidParticipants,
		s.TotalCollected.Float(),
		s.CarryOverAmount.Float(),
		s.TotalExpenses.Float(),
		s.Balance.Balance.Float(),
		string(s.Status()),
	}
}

// findMatchRow returns the 1-based row holding matchID in column A, or 0.
func findMatchRow(values [][]any, matchID string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == matchID {
			return i + 1
		}
	}
	return 0
}
