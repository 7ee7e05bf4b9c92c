package services

import (
	"context"
	"fmt"
	"time"

	"fintask/internal/core"
)

// DashboardStats summarizes a user's financial position for the dashboard.
type DashboardStats struct {
	// TotalMonthlyExpenseCents sums all non-archived expense amounts,
	// recurring and one-time, independent of generated tasks.
	TotalMonthlyExpenseCents int64 `json:"totalExpenses"`
	// PendingTasks counts pending tasks generated for the current month.
	PendingTasks int `json:"pendingTasks"`
	// CompletedTasks counts paid tasks generated for the current month.
	// Tasks on hold appear in neither count.
	CompletedTasks int   `json:"completedTasks"`
	Categories     int64 `json:"categories"`
}

type StatsService struct {
	expenses ExpenseStore
	tasks    TaskStore
}

func NewStatsService(expenses ExpenseStore, tasks TaskStore) *StatsService {
	return &StatsService{expenses: expenses, tasks: tasks}
}

// ComputeStats builds the dashboard summary as of the given instant. The
// "current month" window is the calendar month containing asOf.
func (s *StatsService) ComputeStats(ctx context.Context, userID string, asOf time.Time) (*DashboardStats, error) {
	total, err := s.expenses.SumActiveExpenseAmounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}

	month := core.MonthOf(asOf)
	tasks, err := s.tasks.ListTasksForMonth(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("list current month tasks: %w", err)
	}

	stats := &DashboardStats{TotalMonthlyExpenseCents: total}
	for _, t := range tasks {
		switch t.Status {
		case core.StatusPending:
			stats.PendingTasks++
		case core.StatusPaid:
			stats.CompletedTasks++
		}
	}

	categories, err := s.expenses.CountCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	stats.Categories = categories

	return stats, nil
}
