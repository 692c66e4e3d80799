package http

import (
	"errors"
	"fmt"
	"net/http"

	"matchfund/internal/core"
	"matchfund/internal/log"
	"matchfund/internal/services"
)

type bulkUpdateResponse struct {
	Updated int64  `json:"updated"`
	Message string `json:"message"`
}

// handleListParticipants lists the participants of ?matchId, or of the
// current match. It answers [] when there is no match at all.
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	matchID, err := s.ledger.ResolveMatchID(ctx, matchIDParam(r))
	if errors.Is(err, core.ErrNoActiveMatch) {
		NewJSONResponse().Body([]core.Participant{}).Write(w)
		return
	}
	if err != nil {
		s.fail(w, r, err, opRead, log.OpList, "Failed to fetch participants")
		return
	}

	participants, err := s.ledger.ListParticipants(ctx, matchID)
	if err != nil {
		s.fail(w, r, err, opRead, log.OpList, "Failed to fetch participants")
		return
	}
	NewJSONResponse().Body(participants).Write(w)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addParticipantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to add participant")
		return
	}

	p, err := s.ledger.AddParticipant(ctx, services.AddParticipantInput{
		MatchID: sanitizeInput(req.MatchID),
		Name:    sanitizeInput(req.Name),
		Amount:  req.Amount,
	})
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to add participant")
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Participant added",
		log.NewFields().WithParticipant(p.ID, p.Name, p.Amount.Cents).ToSlice()...)

	NewJSONResponse().Status(http.StatusCreated).Body(p).Write(w)
}

// handleUpdatePayment toggles the paid flag of one participant.
func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, opWrite, log.OpUpdate, "Failed to update participant")
		return
	}

	p, err := s.ledger.UpdateParticipantPayment(r.Context(), r.PathValue("id"), *req.Paid)
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpUpdate, "Failed to update participant")
		return
	}
	NewJSONResponse().Body(p).Write(w)
}

func (s *Server) handleDeleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteParticipant(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err, opWrite, log.OpDelete, "Failed to delete participant")
		return
	}
	NewJSONResponse().Body(messageResponse{Message: "Participant deleted successfully"}).Write(w)
}

func (s *Server) handleMarkAllPaid(w http.ResponseWriter, r *http.Request) {
	s.markAll(w, r, true)
}

func (s *Server) handleMarkAllPending(w http.ResponseWriter, r *http.Request) {
	s.markAll(w, r, false)
}

func (s *Server) markAll(w http.ResponseWriter, r *http.Request, paid bool) {
	ctx := r.Context()

	var req matchRefRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		s.fail(w, r, err, opWrite, log.OpUpdate, "Failed to update participants")
		return
	}
	matchID := sanitizeInput(req.MatchID)
	if matchID == "" {
		matchID = matchIDParam(r)
	}

	mark, state := s.ledger.MarkAllParticipantsPending, "pending"
	if paid {
		mark, state = s.ledger.MarkAllParticipantsPaid, "paid"
	}
	n, err := mark(ctx, matchID)
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpUpdate, "Failed to update participants")
		return
	}

	NewJSONResponse().Body(bulkUpdateResponse{
		Updated: n,
		Message: fmt.Sprintf("%d participants marked as %s", n, state),
	}).Write(w)
}
