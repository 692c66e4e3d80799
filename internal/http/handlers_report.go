package http

import (
	"net/http"
	"time"

	"matchfund/internal/log"
	"matchfund/internal/report"
)

// handleSummary returns the financial summary of ?matchId, or of the current
// match.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	matchID, err := s.ledger.ResolveMatchID(ctx, matchIDParam(r))
	if err != nil {
		s.fail(w, r, err, opRead, log.OpRead, "Failed to generate financial summary")
		return
	}

	summary, err := s.ledger.GetFinancialSummary(ctx, matchID)
	if err != nil {
		s.fail(w, r, err, opRead, log.OpRead, "Failed to generate financial summary")
		return
	}
	NewJSONResponse().Body(summary).Write(w)
}

// handleMatchReport downloads the plain-text transparency report.
func (s *Server) handleMatchReport(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.GetFinancialSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, opRead, log.OpExport, "Failed to generate report")
		return
	}

	now := time.Now()
	NewJSONResponse().
		Raw("text/plain; charset=utf-8", []byte(report.Text(summary, now))).
		Attachment(report.Filename(report.FilenamePrefix, now, "txt")).
		Write(w)
}

// handleMatchExport downloads the JSON export document.
func (s *Server) handleMatchExport(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.GetFinancialSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, opRead, log.OpExport, "Failed to export match")
		return
	}

	now := time.Now()
	doc, err := report.Export(summary, now)
	if err != nil {
		s.fail(w, r, err, opRead, log.OpExport, "Failed to export match")
		return
	}
	NewJSONResponse().
		Raw("application/json", doc).
		Attachment(report.Filename(report.ExportFilenamePrefix, now, "json")).
		Write(w)
}
