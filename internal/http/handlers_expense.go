package http

import (
	"errors"
	"net/http"

	"matchfund/internal/core"
	"matchfund/internal/log"
	"matchfund/internal/services"
)

// handleListExpenses lists the expenses of ?matchId, or of the current match.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	matchID, err := s.ledger.ResolveMatchID(ctx, matchIDParam(r))
	if errors.Is(err, core.ErrNoActiveMatch) {
		NewJSONResponse().Body([]core.Expense{}).Write(w)
		return
	}
	if err != nil {
		s.fail(w, r, err, opRead, log.OpList, "Failed to fetch expenses")
		return
	}

	expenses, err := s.ledger.ListExpenses(ctx, matchID)
	if err != nil {
		s.fail(w, r, err, opRead, log.OpList, "Failed to fetch expenses")
		return
	}
	NewJSONResponse().Body(expenses).Write(w)
}

// handleAddExpense records an expense. Category defaults to Others and the
// expense date to today.
func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to add expense")
		return
	}

	e, err := s.ledger.AddExpense(ctx, services.AddExpenseInput{
		MatchID:     sanitizeInput(req.MatchID),
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		ExpenseDate: req.ExpenseDate,
	})
	if err != nil {
		s.fail(w, r, err, opWrite, log.OpCreate, "Failed to add expense")
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Expense added",
		log.NewFields().WithExpense(e.ID, e.Description, e.Category, e.Amount.Cents).ToSlice()...)

	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err, opWrite, log.OpDelete, "Failed to delete expense")
		return
	}
	NewJSONResponse().Body(messageResponse{Message: "Expense deleted successfully"}).Write(w)
}
