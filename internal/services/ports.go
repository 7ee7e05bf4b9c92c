package services

import (
	"context"
	"time"

	"fintask/internal/core"
	"fintask/internal/storage"
)

// ExpenseStore is the slice of storage the task generator reads from.
type ExpenseStore interface {
	ListActiveRecurringExpenses(ctx context.Context, userID string) ([]core.RecurringExpense, error)
	SumActiveExpenseAmounts(ctx context.Context, userID string) (int64, error)
	CountCategories(ctx context.Context, userID string) (int64, error)
}

// TaskStore is the slice of storage the task services write to and read from.
type TaskStore interface {
	InsertTask(ctx context.Context, t core.FinancialTask) (*core.FinancialTask, bool, error)
	GetTask(ctx context.Context, userID string, id int64) (*core.FinancialTask, error)
	UpdateTaskStatus(ctx context.Context, userID string, id int64, from, to core.TaskStatus) (*core.FinancialTask, error)
	ListTasks(ctx context.Context, userID string) ([]core.FinancialTask, error)
	ListTasksForMonth(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error)
	ListTasksInRange(ctx context.Context, userID string, from, to time.Time) ([]core.FinancialTask, error)
}

// EventPublisher emits task lifecycle events to the message broker.
// Implementations must be safe for concurrent use; a nil publisher disables
// event emission.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, taskID int64, userID, event string) error
}

var _ ExpenseStore = (*storage.SQLiteRepository)(nil)
var _ TaskStore = (*storage.SQLiteRepository)(nil)
