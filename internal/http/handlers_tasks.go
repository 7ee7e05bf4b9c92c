package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintask/internal/core"
)

// handleListTasks returns the user's tasks, filtered to one month when both
// the month and year query parameters are present. A partial filter is
// ignored and the full list is returned.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var month core.Month
	monthParam := strings.TrimSpace(r.URL.Query().Get("month"))
	yearParam := strings.TrimSpace(r.URL.Query().Get("year"))
	if monthParam != "" && yearParam != "" {
		m, err := strconv.Atoi(monthParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month parameter")
			return
		}
		y, err := strconv.Atoi(yearParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year parameter")
			return
		}
		month = core.NewMonth(y, time.Month(m))
		if err := month.Validate(); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	tasks, err := s.tasks.List(r.Context(), uid, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := s.tasks.Get(r.Context(), uid, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := s.tasks.UpdateStatus(r.Context(), uid, id, sanitizeInput(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateStats(uid)
	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

type generateRequest struct {
	// TargetMonth is "YYYY-MM"; empty means the current month.
	TargetMonth string `json:"targetMonth"`
}

type generateResponse struct {
	Month   string         `json:"month"`
	Created int            `json:"created"`
	Tasks   []taskResponse `json:"tasks"`
}

// handleGenerateTasks triggers generation on demand for the caller. The
// scheduler and this endpoint share the same generator, so re-triggering an
// already generated month is a no-op.
func (s *Server) handleGenerateTasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	month := core.MonthOf(time.Now())
	if raw := strings.TrimSpace(req.TargetMonth); raw != "" {
		var err error
		month, err = core.ParseMonth(raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	created, err := s.generator.Generate(r.Context(), uid, month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Manual task generation requested",
		"user_id", uid,
		"month", month.Token(),
		"created", len(created))

	s.invalidateStats(uid)
	writeJSON(w, http.StatusOK, generateResponse{
		Month:   month.Token(),
		Created: len(created),
		Tasks:   toTaskResponses(created),
	})
}
