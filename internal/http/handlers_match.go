package http

import (
	"net/http"

	"matchfund/internal/auth"
	"matchfund/internal/core"
	"matchfund/internal/log"
	"matchfund/internal/services"
)

type createMatchResponse struct {
	Match   core.Match `json:"match"`
	Message string     `json:"message"`
}

type endMatchResponse struct {
	Match   core.Match            `json:"match"`
	Summary core.FinancialSummary `json:"summary"`
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.ledger.ListMatches(r.Context())
	if err != nil {
		s.fail(w, r, err, opRead, log.OpList, "Failed to fetch matches")
		return
	}
	NewJSONResponse().Body(matches).Write(w)
}

// handleCurrentMatch answers null when no match is active.
func (s *Server) handleCurrentMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.ledger.GetCurrentMatch(r.Context())
	if err != nil {
		s.fail(w, r, err, opRead, log.OpRead, "Failed to fetch current match")
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.ledger.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, opRead, log.OpRead, "Failed to fetch match")
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to create match")
		return
	}

	in := services.CreateMatchInput{
		Name: sanitizeInput(req.Name),
		Date: req.Date,
	}
	if req.CarryOverAmount != nil {
		in.CarryOver = *req.CarryOverAmount
	}
	if p, ok := auth.Principal(ctx); ok {
		in.Creator = &p
	}

	m, err := s.ledger.CreateMatch(ctx, in)
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to create match")
		return
	}

	log.NewStructuredLogger(log.FromContext(ctx)).LogMatchEvent(ctx, "Match created", log.OpCreate, m.ID, m.Name)

	NewJSONResponse().
		Status(http.StatusCreated).
		Body(createMatchResponse{Match: m, Message: "Match created successfully"}).
		Write(w)
}

// handleEndMatch freezes the match totals and returns the final summary.
func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, summary, err := s.ledger.EndMatch(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpEnd, "Failed to end match")
		return
	}

	log.NewStructuredLogger(log.FromContext(ctx)).LogMatchEvent(ctx, "Match ended", log.OpEnd, m.ID, m.Name)

	NewJSONResponse().Body(endMatchResponse{Match: m, Summary: summary}).Write(w)
}

// handleLastBalance returns the final balance of the most recently ended
// match, used as the default carry-over of the next one.
func (s *Server) handleLastBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.GetLastMatchBalance(r.Context())
	if err != nil {
		s.fail(w, r, err, opRead, log.OpRead, "Failed to fetch last match balance")
		return
	}
	NewJSONResponse().Body(map[string]core.Money{"balance": balance}).Write(w)
}
