package http

import (
	"encoding/json"
	"net/http"
	"time"

	"fintask/internal/core"
)

type categoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type categoryResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Type:      c.Type,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.expenses.CreateCategory(r.Context(), core.Category{
		UserID: uid,
		Name:   sanitizeInput(req.Name),
		Type:   sanitizeInput(req.Type),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	writeJSON(w, http.StatusCreated, toCategoryResponse(*created))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	categories, err := s.expenses.ListCategories(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.expenses.UpdateCategory(r.Context(), uid, id, sanitizeInput(req.Name), sanitizeInput(req.Type))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(*updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := s.expenses.DeleteCategory(r.Context(), uid, id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	w.WriteHeader(http.StatusNoContent)
}
