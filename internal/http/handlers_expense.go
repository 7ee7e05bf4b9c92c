package http

import (
	"encoding/json"
	"net/http"

	"fintask/internal/core"
)

type expenseRequest struct {
	Name       string `json:"name"`
	Amount     string `json:"amount"` // decimal, e.g. "15.99"
	Currency   string `json:"currency"`
	Type       string `json:"type"`
	CategoryID int64  `json:"categoryId"`
	DueDay     int    `json:"dueDay"`
}

func (req *expenseRequest) toDomain(userID string) (core.RecurringExpense, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	currency := sanitizeInput(req.Currency)
	if currency == "" {
		currency = "EUR"
	}
	return core.RecurringExpense{
		UserID:     userID,
		Name:       sanitizeInput(req.Name),
		Amount:     core.Money{Cents: cents},
		Currency:   currency,
		Type:       core.ExpenseType(sanitizeInput(req.Type)),
		CategoryID: req.CategoryID,
		DueDay:     req.DueDay,
	}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expense, err := req.toDomain(uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	writeJSON(w, http.StatusCreated, toExpenseResponse(*created))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	expense, err := s.expenses.GetExpense(r.Context(), uid, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(*expense))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	expenses, err := s.expenses.ListExpenses(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expense, err := req.toDomain(uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	expense.ID = id

	updated, err := s.expenses.UpdateExpense(r.Context(), expense)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	writeJSON(w, http.StatusOK, toExpenseResponse(*updated))
}

// handleArchiveExpense retires an expense from future generation runs while
// keeping its historical tasks.
func (s *Server) handleArchiveExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.expenses.ArchiveExpense(r.Context(), uid, id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), uid, id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	w.WriteHeader(http.StatusNoContent)
}
