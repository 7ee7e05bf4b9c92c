package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintask/internal/core"
)

// userID extracts the caller's identity from the X-User-ID header. The API
// sits behind a gateway that authenticates and injects the header.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDueDay),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrEmptyName):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireUser writes a 401 and returns false when no identity header is set.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return uid, true
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type taskResponse struct {
	ID           int64  `json:"id"`
	ExpenseID    int64  `json:"expenseId"`
	AmountCents  int64  `json:"amountCents"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	GeneratedFor string `json:"generatedFor"`
	DueDate      string `json:"dueDate"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func toTaskResponse(t core.FinancialTask) taskResponse {
	return taskResponse{
		ID:           t.ID,
		ExpenseID:    t.ExpenseID,
		AmountCents:  t.Amount.Cents,
		Amount:       t.Amount.Decimal(),
		Status:       string(t.Status),
		GeneratedFor: t.GeneratedFor.Token(),
		DueDate:      t.DueDate.Format("2006-01-02"),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}

func toTaskResponses(tasks []core.FinancialTask) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amountCents"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Type        string `json:"type"`
	CategoryID  int64  `json:"categoryId,omitempty"`
	DueDay      int    `json:"dueDay"`
	Archived    bool   `json:"archived"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toExpenseResponse(e core.RecurringExpense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Name:        e.Name,
		AmountCents: e.Amount.Cents,
		Amount:      e.Amount.Decimal(),
		Currency:    e.Currency,
		Type:        string(e.Type),
		CategoryID:  e.CategoryID,
		DueDay:      e.DueDay,
		Archived:    e.Archived,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}
