package http

import (
	"log/slog"
	"net/http"
	"time"

	"fintask/internal/core"
	"fintask/internal/services"
)

type statsResponse struct {
	TotalExpenses      string `json:"totalExpenses"`
	TotalExpensesCents int64  `json:"totalExpensesCents"`
	PendingTasks       int    `json:"pendingTasks"`
	CompletedTasks     int    `json:"completedTasks"`
	Categories         int64  `json:"categories"`
}

func toStatsResponse(stats *services.DashboardStats) statsResponse {
	return statsResponse{
		TotalExpenses:      core.Money{Cents: stats.TotalMonthlyExpenseCents}.Decimal(),
		TotalExpensesCents: stats.TotalMonthlyExpenseCents,
		PendingTasks:       stats.PendingTasks,
		CompletedTasks:     stats.CompletedTasks,
		Categories:         stats.Categories,
	}
}

// handleDashboardStats serves the dashboard summary. Results are cached per
// user for a short window; mutating handlers invalidate the entry.
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	if cached, found := s.statsCache.Get(uid); found {
		slog.DebugContext(r.Context(), "Stats cache hit", "user_id", uid)
		writeJSON(w, http.StatusOK, toStatsResponse(cached))
		return
	}

	stats, err := s.stats.ComputeStats(r.Context(), uid, time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.statsCache.Set(uid, stats)
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}
