package services

import (
	"context"
	"testing"
	"time"

	"fintask/internal/core"
)

func TestComputeStats_HoldCountsInNeitherBucket(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{
		recurringExpense(1, "user-1", "Rent", 95000, 1),
		recurringExpense(2, "user-1", "Internet", 2999, 15),
		recurringExpense(3, "user-1", "Gym", 4500, 10),
	}
	store.categoryCount = 2

	asOf := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	month := core.MonthOf(asOf)
	gen := NewTaskGenerator(store, store, nil)
	created, err := gen.Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d tasks, want 3", len(created))
	}

	svc := NewTaskService(store, nil)
	if _, err := svc.UpdateStatus(context.Background(), "user-1", created[0].ID, "paid"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), "user-1", created[1].ID, "hold"); err != nil {
		t.Fatalf("hold: %v", err)
	}

	stats, err := NewStatsService(store, store).ComputeStats(context.Background(), "user-1", asOf)
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.PendingTasks != 1 {
		t.Errorf("PendingTasks = %d, want 1", stats.PendingTasks)
	}
	if stats.CompletedTasks != 1 {
		t.Errorf("CompletedTasks = %d, want 1", stats.CompletedTasks)
	}
	if stats.TotalMonthlyExpenseCents != 95000+2999+4500 {
		t.Errorf("TotalMonthlyExpenseCents = %d, want %d", stats.TotalMonthlyExpenseCents, 95000+2999+4500)
	}
	if stats.Categories != 2 {
		t.Errorf("Categories = %d, want 2", stats.Categories)
	}
}

func TestComputeStats_WindowIsCurrentMonthOnly(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{recurringExpense(1, "user-1", "Rent", 95000, 1)}
	gen := NewTaskGenerator(store, store, nil)

	// Tasks exist for January and February; stats as of February must only
	// see February's.
	for _, m := range []core.Month{
		core.NewMonth(2026, time.January),
		core.NewMonth(2026, time.February),
	} {
		if _, err := gen.Generate(context.Background(), "user-1", m); err != nil {
			t.Fatalf("Generate(%s): %v", m.Token(), err)
		}
	}

	asOf := time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)
	stats, err := NewStatsService(store, store).ComputeStats(context.Background(), "user-1", asOf)
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.PendingTasks != 1 {
		t.Errorf("PendingTasks = %d, want 1 (January excluded)", stats.PendingTasks)
	}
}

// End-to-end walk of the generation example: two recurring expenses with
// due days 31 and 5, one one-time expense, generated for February 2026.
func TestMonthlyGenerationScenario(t *testing.T) {
	store := newFakeStore()
	store.expenses = []core.RecurringExpense{
		recurringExpense(1, "user-1", "Streaming", 1599, 31),
		recurringExpense(2, "user-1", "Music", 999, 5),
		{ID: 3, UserID: "user-1", Name: "Concert tickets", Amount: core.Money{Cents: 8000}, Currency: "EUR", Type: core.OneTime, DueDay: 12},
	}

	asOf := time.Date(2026, time.February, 1, 0, 1, 0, 0, time.UTC)
	month := core.MonthOf(asOf)
	created, err := NewTaskGenerator(store, store, nil).Generate(context.Background(), "user-1", month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d tasks, want 2", len(created))
	}

	dueDates := map[int64]string{}
	for _, task := range created {
		dueDates[task.ExpenseID] = task.DueDate.Format("2006-01-02")
	}
	if dueDates[1] != "2026-02-28" {
		t.Errorf("due day 31 clamped to %s, want 2026-02-28", dueDates[1])
	}
	if dueDates[2] != "2026-02-05" {
		t.Errorf("due day 5 mapped to %s, want 2026-02-05", dueDates[2])
	}

	stats, err := NewStatsService(store, store).ComputeStats(context.Background(), "user-1", asOf)
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.PendingTasks != 2 || stats.CompletedTasks != 0 {
		t.Errorf("stats = pending %d / completed %d, want 2 / 0", stats.PendingTasks, stats.CompletedTasks)
	}
	if stats.TotalMonthlyExpenseCents != 1599+999+8000 {
		t.Errorf("TotalMonthlyExpenseCents = %d, want %d", stats.TotalMonthlyExpenseCents, 1599+999+8000)
	}
}
