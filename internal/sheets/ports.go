package sheets

import (
	"context"

	"matchfund/internal/core"
)

// Ports for outbound adapters.
type (
	// SummaryExporter appends the frozen summary of an ended match to an
	// external ledger. Appending the same match twice must not add a second row.
	SummaryExporter interface {
		AppendMatchSummary(ctx context.Context, s core.FinancialSummary) (rowRef string, err error)
	}
)
