package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintask/internal/core"
)

func recurringExpense(id int64, userID, name string, cents int64, dueDay int) core.RecurringExpense {
	return core.RecurringExpense{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Amount:   core.Money{Cents: cents},
		Currency: "EUR",
		Type:     core.Recurring,
		DueDay:   dueDay,
	}
}

func TestGenerate_CreatesOneTaskPerRecurringExpense(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{
		recurringExpense(1, "user-1", "Netflix", 1599, 31),
		recurringExpense(2, "user-1", "Spotify", 999, 5),
		{ID: 3, UserID: "user-1", Name: "Laptop", Amount: core.Money{Cents: 120000}, Currency: "EUR", Type: core.OneTime, DueDay: 15},
	}
	pub := &fakePublisher{}
	gen := NewTaskGenerator(store, store, pub)

	month := core.NewMonth(2026, time.February)
	created, err := gen.Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d tasks, want 2 (one-time excluded)", len(created))
	}

	byExpense := map[int64]core.FinancialTask{}
	for _, task := range created {
		byExpense[task.ExpenseID] = task
		if task.Status != core.StatusPending {
			t.Errorf("task for expense %d has status %s, want pending", task.ExpenseID, task.Status)
		}
		if task.GeneratedFor != month {
			t.Errorf("task for expense %d generated for %s, want %s", task.ExpenseID, task.GeneratedFor.Token(), month.Token())
		}
	}

	// Due day 31 clamps to Feb 28 in a non-leap year.
	if got := byExpense[1].DueDate; got != time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Netflix due date = %v, want 2026-02-28", got)
	}
	if got := byExpense[2].DueDate; got != time.Date(2026, time.February, 5, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Spotify due date = %v, want 2026-02-05", got)
	}

	if len(pub.events) != 2 {
		t.Errorf("published %d events, want 2", len(pub.events))
	}
	for _, ev := range pub.events {
		if ev.event != EventTaskGenerated {
			t.Errorf("event = %q, want %q", ev.event, EventTaskGenerated)
		}
	}
}

func TestGenerate_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{
		recurringExpense(1, "user-1", "Rent", 95000, 1),
		recurringExpense(2, "user-1", "Internet", 2999, 15),
	}
	gen := NewTaskGenerator(store, store, nil)
	month := core.NewMonth(2026, time.March)

	first, err := gen.Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first run created %d, want 2", len(first))
	}

	second, err := gen.Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second run created %d tasks, want 0", len(second))
	}
	if len(store.tasks) != 2 {
		t.Errorf("store holds %d tasks, want 2 (no duplicates)", len(store.tasks))
	}
}

func TestGenerate_AmountSnapshot(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{recurringExpense(1, "user-1", "Gym", 4500, 10)}
	gen := NewTaskGenerator(store, store, nil)

	month := core.NewMonth(2026, time.May)
	created, err := gen.Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// A later price change must not touch the already generated task.
	store.expenses[0].Amount = core.Money{Cents: 5500}
	task, err := store.GetTask(context.Background(), "user-1", created[0].ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Amount.Cents != 4500 {
		t.Errorf("task amount = %d, want snapshot 4500", task.Amount.Cents)
	}
}

func TestGenerate_ContinuesPastFailingExpense(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{
		recurringExpense(1, "user-1", "Rent", 95000, 1),
		recurringExpense(2, "user-1", "Broken", 100, 5),
		recurringExpense(3, "user-1", "Internet", 2999, 15),
	}
	store.insertTaskErr[2] = errStorageDown
	gen := NewTaskGenerator(store, store, nil)

	created, err := gen.Generate(context.Background(), "user-1", core.NewMonth(2026, time.June))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("created %d tasks, want 2 despite one failure", len(created))
	}
}

func TestGenerate_ExpenseReadFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.listExpensesErr = errStorageDown
	gen := NewTaskGenerator(store, store, nil)

	if _, err := gen.Generate(context.Background(), "user-1", core.NewMonth(2026, time.June)); !errors.Is(err, errStorageDown) {
		t.Errorf("Generate: got %v, want wrapped storage error", err)
	}
}

func TestGenerate_RejectsInvalidMonth(t *testing.T) {
	gen := NewTaskGenerator(newFakeStore(), newFakeStore(), nil)
	if _, err := gen.Generate(context.Background(), "user-1", core.Month{}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("Generate(zero month): got %v, want ErrInvalidMonth", err)
	}
}

func TestGenerate_PublishFailureDoesNotFailGeneration(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{recurringExpense(1, "user-1", "Rent", 95000, 1)}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	gen := NewTaskGenerator(store, store, pub)

	created, err := gen.Generate(context.Background(), "user-1", core.NewMonth(2026, time.July))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("created %d tasks, want 1", len(created))
	}
}
