package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintask/internal/core"
)

// TaskService exposes read and status-transition operations on financial
// tasks. Transition rules live in core; the service orders the checks so the
// caller can map each failure to a distinct error.
type TaskService struct {
	tasks     TaskStore
	publisher EventPublisher
}

func NewTaskService(tasks TaskStore, publisher EventPublisher) *TaskService {
	return &TaskService{tasks: tasks, publisher: publisher}
}

// UpdateStatus moves a task to rawStatus. Checks run in order: status parse,
// task lookup, transition legality, then the guarded store update.
func (s *TaskService) UpdateStatus(ctx context.Context, userID string, taskID int64, rawStatus string) (*core.FinancialTask, error) {
	to, err := core.ParseTaskStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if !core.CanTransition(task.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, task.Status, to)
	}

	updated, err := s.tasks.UpdateTaskStatus(ctx, userID, taskID, task.Status, to)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Task status updated",
		"task_id", taskID,
		"user_id", userID,
		"from", task.Status,
		"to", to)

	if to == core.StatusPaid && s.publisher != nil {
		if err := s.publisher.PublishTaskEvent(ctx, taskID, userID, EventTaskPaid); err != nil {
			slog.WarnContext(ctx, "Failed to publish paid event",
				"task_id", taskID,
				"error", err)
		}
	}

	return updated, nil
}

func (s *TaskService) Get(ctx context.Context, userID string, taskID int64) (*core.FinancialTask, error) {
	return s.tasks.GetTask(ctx, userID, taskID)
}

// List returns the user's tasks, restricted to month when it is non-zero.
func (s *TaskService) List(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error) {
	if month.IsZero() {
		return s.tasks.ListTasks(ctx, userID)
	}
	if err := month.Validate(); err != nil {
		return nil, err
	}
	return s.tasks.ListTasksForMonth(ctx, userID, month)
}

// ListInRange returns the user's tasks with a due date inside [from, to].
func (s *TaskService) ListInRange(ctx context.Context, userID string, from, to time.Time) ([]core.FinancialTask, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end before start", core.ErrInvalidRange)
	}
	return s.tasks.ListTasksInRange(ctx, userID, from, to)
}
