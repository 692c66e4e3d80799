// Package memory is the in-process SummaryExporter used when Google Sheets is
// not configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"matchfund/internal/core"
	ports "matchfund/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows []core.FinancialSummary
}

var _ ports.SummaryExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) AppendMatchSummary(_ context.Context, s core.FinancialSummary) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, row := range e.rows {
		if row.Match.ID == s.Match.ID {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	e.rows = append(e.rows, s)
	return fmt.Sprintf("mem:%d", len(e.rows)), nil
}

// Rows returns the exported summaries in append order.
func (e *Exporter) Rows() []core.FinancialSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.FinancialSummary(nil), e.rows...)
}
