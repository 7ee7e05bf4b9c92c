// Package worker exports paid financial tasks to the external statement.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintask/internal/amqp"
	"fintask/internal/core"
	"fintask/internal/export"
	"fintask/internal/storage"
)

type taskStore interface {
	GetTask(ctx context.Context, userID string, id int64) (*core.FinancialTask, error)
	GetExpense(ctx context.Context, userID string, id int64) (*core.RecurringExpense, error)
	ListPendingExportTasks(ctx context.Context, limit int) ([]storage.PendingExportTask, error)
	MarkTaskExported(ctx context.Context, id int64) error
	MarkTaskExportError(ctx context.Context, id int64) error
}

type ExportWorker struct {
	store     taskStore
	writer    export.StatementWriter
	batchSize int
}

func NewExportWorker(store taskStore, writer export.StatementWriter, batchSize int) *ExportWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	return &ExportWorker{store: store, writer: writer, batchSize: batchSize}
}

// HandleTaskEvent processes one queue message. Non-paid events and stale
// references ack silently; a failed statement write returns an error so the
// message is requeued.
func (w *ExportWorker) HandleTaskEvent(ctx context.Context, msg *amqp.TaskEventMessage) error {
	if msg.Event != "paid" {
		slog.DebugContext(ctx, "Ignoring non-paid task event",
			"task_id", msg.TaskID,
			"event", msg.Event)
		return nil
	}

	task, err := w.store.GetTask(ctx, msg.UserID, msg.TaskID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Task event references missing task", "task_id", msg.TaskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %d: %w", msg.TaskID, err)
	}
	if task.Status != core.StatusPaid {
		// The status moved again before we got here; the sweep will catch
		// it if it becomes paid later.
		return nil
	}

	expense, err := w.store.GetExpense(ctx, task.UserID, task.ExpenseID)
	if err != nil {
		return fmt.Errorf("load expense %d: %w", task.ExpenseID, err)
	}

	return w.exportOne(ctx, task, expense.Name, expense.Currency)
}

func (w *ExportWorker) exportOne(ctx context.Context, task *core.FinancialTask, expenseName, currency string) error {
	row := export.StatementRow{
		TaskID:      task.ID,
		UserID:      task.UserID,
		ExpenseName: expenseName,
		Month:       task.GeneratedFor.Token(),
		DueDate:     task.DueDate.Format("2006-01-02"),
		Amount:      task.Amount.Decimal(),
		Currency:    currency,
		PaidAt:      task.UpdatedAt.Format(time.RFC3339),
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		if markErr := w.store.MarkTaskExportError(ctx, task.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "task_id", task.ID, "error", markErr)
		}
		return fmt.Errorf("append statement row for task %d: %w", task.ID, err)
	}

	if err := w.store.MarkTaskExported(ctx, task.ID); err != nil {
		return fmt.Errorf("mark task %d exported: %w", task.ID, err)
	}

	slog.InfoContext(ctx, "Task exported to statement",
		"task_id", task.ID,
		"ref", ref)
	return nil
}

// ProcessPendingExports sweeps paid tasks whose export did not happen, for
// example because a queue message was lost. Returns the number exported.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) (int, error) {
	pending, err := w.store.ListPendingExportTasks(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}

	exported := 0
	for _, p := range pending {
		task := p.Task
		if err := w.exportOne(ctx, &task, p.ExpenseName, p.Currency); err != nil {
			slog.ErrorContext(ctx, "Pending export failed",
				"task_id", task.ID,
				"error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

// StartupCheck runs one sweep at worker start so tasks paid while the
// worker was down are exported without waiting for the interval.
func (w *ExportWorker) StartupCheck(ctx context.Context) {
	n, err := w.ProcessPendingExports(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Startup export sweep failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Startup export sweep finished", "exported", n)
}

// RunSweeper keeps sweeping at the given interval until ctx is cancelled.
func (w *ExportWorker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.ProcessPendingExports(ctx); err != nil {
				slog.ErrorContext(ctx, "Export sweep failed", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "Export sweep finished", "exported", n)
			}
		}
	}
}
