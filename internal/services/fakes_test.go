package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintask/internal/core"
)

// fakeStore is an in-memory stand-in for the SQLite repository. It enforces
// the same uniqueness and compare-and-swap semantics the real store does.
type fakeStore struct {
	expenses      []core.RecurringExpense
	tasks         map[int64]*core.FinancialTask
	nextTaskID    int64
	categoryCount int64

	listExpensesErr error
	insertTaskErr   map[int64]error // keyed by expense id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:         make(map[int64]*core.FinancialTask),
		insertTaskErr: make(map[int64]error),
	}
}

func (f *fakeStore) ListActiveRecurringExpenses(_ context.Context, userID string) ([]core.RecurringExpense, error) {
	if f.listExpensesErr != nil {
		return nil, f.listExpensesErr
	}
	var out []core.RecurringExpense
	for _, e := range f.expenses {
		if e.UserID == userID && !e.Archived && e.Type == core.Recurring {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) SumActiveExpenseAmounts(_ context.Context, userID string) (int64, error) {
	var total int64
	for _, e := range f.expenses {
		if e.UserID == userID && !e.Archived {
			total += e.Amount.Cents
		}
	}
	return total, nil
}

func (f *fakeStore) CountCategories(_ context.Context, _ string) (int64, error) {
	return f.categoryCount, nil
}

func (f *fakeStore) InsertTask(_ context.Context, t core.FinancialTask) (*core.FinancialTask, bool, error) {
	if err := f.insertTaskErr[t.ExpenseID]; err != nil {
		return nil, false, err
	}
	for _, existing := range f.tasks {
		if existing.ExpenseID == t.ExpenseID && existing.GeneratedFor == t.GeneratedFor {
			cp := *existing
			return &cp, false, nil
		}
	}
	f.nextTaskID++
	t.ID = f.nextTaskID
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	f.tasks[t.ID] = &t
	cp := t
	return &cp, true, nil
}

func (f *fakeStore) GetTask(_ context.Context, userID string, id int64) (*core.FinancialTask, error) {
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, userID string, id int64, from, to core.TaskStatus) (*core.FinancialTask, error) {
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, core.ErrNotFound
	}
	if t.Status != from {
		return nil, fmt.Errorf("%w: task %d no longer in status %s", core.ErrInvalidTransition, id, from)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTasks(_ context.Context, userID string) ([]core.FinancialTask, error) {
	var out []core.FinancialTask
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTasksForMonth(_ context.Context, userID string, month core.Month) ([]core.FinancialTask, error) {
	var out []core.FinancialTask
	for _, t := range f.tasks {
		if t.UserID == userID && t.GeneratedFor == month {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTasksInRange(_ context.Context, userID string, from, to time.Time) ([]core.FinancialTask, error) {
	var out []core.FinancialTask
	for _, t := range f.tasks {
		if t.UserID == userID && !t.DueDate.Before(from) && !t.DueDate.After(to) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type publishedEvent struct {
	taskID int64
	userID string
	event  string
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishTaskEvent(_ context.Context, taskID int64, userID, event string) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{taskID: taskID, userID: userID, event: event})
	return nil
}

var errStorageDown = errors.New("database is locked")
