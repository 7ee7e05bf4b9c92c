package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintask/internal/core"
)

// TaskGenerator derives the payable tasks of a month from a user's active
// recurring expenses. Generation is idempotent: re-running it for the same
// month creates nothing new.
type TaskGenerator struct {
	expenses  ExpenseStore
	tasks     TaskStore
	publisher EventPublisher
}

func NewTaskGenerator(expenses ExpenseStore, tasks TaskStore, publisher EventPublisher) *TaskGenerator {
	return &TaskGenerator{
		expenses:  expenses,
		tasks:     tasks,
		publisher: publisher,
	}
}

// Generate creates one pending task per active recurring expense for the
// given month and returns only the tasks created by this call. A failure on
// one expense is logged and does not stop the others; only the initial
// expense read is fatal.
func (g *TaskGenerator) Generate(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}

	expenses, err := g.expenses.ListActiveRecurringExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}

	created := make([]core.FinancialTask, 0, len(expenses))
	for _, e := range expenses {
		task := core.FinancialTask{
			UserID:       userID,
			ExpenseID:    e.ID,
			Amount:       e.Amount,
			Status:       core.StatusPending,
			GeneratedFor: month,
			DueDate:      month.DueDate(e.DueDay),
		}

		saved, wasCreated, err := g.tasks.InsertTask(ctx, task)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to generate task for expense",
				"expense_id", e.ID,
				"user_id", userID,
				"month", month.Token(),
				"error", err)
			continue
		}
		if !wasCreated {
			slog.DebugContext(ctx, "Task already exists, skipping",
				"expense_id", e.ID,
				"month", month.Token())
			continue
		}

		created = append(created, *saved)
		g.publish(ctx, saved.ID, userID, EventTaskGenerated)
	}

	slog.InfoContext(ctx, "Monthly task generation finished",
		"user_id", userID,
		"month", month.Token(),
		"expenses", len(expenses),
		"created", len(created))

	return created, nil
}

const (
	EventTaskGenerated = "generated"
	EventTaskPaid      = "paid"
)

func (g *TaskGenerator) publish(ctx context.Context, taskID int64, userID, event string) {
	if g.publisher == nil {
		return
	}
	// Event delivery is best effort; the task row is the source of truth
	if err := g.publisher.PublishTaskEvent(ctx, taskID, userID, event); err != nil {
		slog.WarnContext(ctx, "Failed to publish task event",
			"task_id", taskID,
			"event", event,
			"error", err)
	}
}
