package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintask/internal/core"
)

func seedTask(t *testing.T, store *fakeStore, userID string, status core.TaskStatus) *core.FinancialTask {
	t.Helper()
	month := core.NewMonth(2026, time.February)
	task, _, err := store.InsertTask(context.Background(), core.FinancialTask{
		UserID:       userID,
		ExpenseID:    int64(len(store.tasks) + 1),
		Amount:       core.Money{Cents: 1599},
		Status:       core.StatusPending,
		GeneratedFor: month,
		DueDate:      month.DueDate(15),
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if status != core.StatusPending {
		if _, err := store.UpdateTaskStatus(context.Background(), userID, task.ID, core.StatusPending, status); err != nil {
			t.Fatalf("seed status %s: %v", status, err)
		}
		task.Status = status
	}
	return task
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    core.TaskStatus
		to      string
		wantErr error
	}{
		{"pending to paid", core.StatusPending, "paid", nil},
		{"pending to hold", core.StatusPending, "hold", nil},
		{"hold to paid", core.StatusHold, "paid", nil},
		{"hold to pending", core.StatusHold, "pending", core.ErrInvalidTransition},
		{"paid to pending", core.StatusPaid, "pending", core.ErrInvalidTransition},
		{"paid to hold", core.StatusPaid, "hold", core.ErrInvalidTransition},
		{"pending to pending", core.StatusPending, "pending", core.ErrInvalidTransition},
		{"unknown status", core.StatusPending, "done", core.ErrInvalidStatus},
		{"empty status", core.StatusPending, "", core.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			task := seedTask(t, store, "user-1", tt.from)
			svc := NewTaskService(store, nil)

			updated, err := svc.UpdateStatus(context.Background(), "user-1", task.ID, tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateStatus: got %v, want %v", err, tt.wantErr)
				}
				// Stored status must be untouched on rejection.
				stored, getErr := store.GetTask(context.Background(), "user-1", task.ID)
				if getErr != nil {
					t.Fatalf("GetTask: %v", getErr)
				}
				if stored.Status != tt.from {
					t.Errorf("stored status changed to %s after rejected transition", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			if updated.Status != core.TaskStatus(tt.to) {
				t.Errorf("status = %s, want %s", updated.Status, tt.to)
			}
		})
	}
}

func TestUpdateStatus_MissingTask(t *testing.T) {
	svc := NewTaskService(newFakeStore(), nil)
	if _, err := svc.UpdateStatus(context.Background(), "user-1", 42, "paid"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateStatus(missing): got %v, want ErrNotFound", err)
	}
}

func TestUpdateStatus_CrossUser(t *testing.T) {
	store := newFakeStore()
	task := seedTask(t, store, "user-1", core.StatusPending)
	svc := NewTaskService(store, nil)

	if _, err := svc.UpdateStatus(context.Background(), "user-2", task.ID, "paid"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-user UpdateStatus: got %v, want ErrNotFound", err)
	}
}

func TestUpdateStatus_PublishesPaidEvent(t *testing.T) {
	store := newFakeStore()
	task := seedTask(t, store, "user-1", core.StatusPending)
	pub := &fakePublisher{}
	svc := NewTaskService(store, pub)

	if _, err := svc.UpdateStatus(context.Background(), "user-1", task.ID, "hold"); err != nil {
		t.Fatalf("UpdateStatus(hold): %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("hold transition published %d events, want 0", len(pub.events))
	}

	if _, err := svc.UpdateStatus(context.Background(), "user-1", task.ID, "paid"); err != nil {
		t.Fatalf("UpdateStatus(paid): %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].event != EventTaskPaid {
		t.Errorf("paid transition events = %+v, want one %q event", pub.events, EventTaskPaid)
	}
}

func TestList_ByMonth(t *testing.T) {
	store := newFakeStore()
	feb := core.NewMonth(2026, time.February)
	mar := core.NewMonth(2026, time.March)
	for i, m := range []core.Month{feb, feb, mar} {
		if _, _, err := store.InsertTask(context.Background(), core.FinancialTask{
			UserID:       "user-1",
			ExpenseID:    int64(i + 1),
			Amount:       core.Money{Cents: 100},
			Status:       core.StatusPending,
			GeneratedFor: m,
			DueDate:      m.DueDate(10),
		}); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}
	svc := NewTaskService(store, nil)

	got, err := svc.List(context.Background(), "user-1", feb)
	if err != nil {
		t.Fatalf("List(feb): %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List(feb) = %d tasks, want 2", len(got))
	}

	all, err := svc.List(context.Background(), "user-1", core.Month{})
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) = %d tasks, want 3", len(all))
	}
}

func TestListInRange_RejectsInvertedRange(t *testing.T) {
	svc := NewTaskService(newFakeStore(), nil)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)
	if _, err := svc.ListInRange(context.Background(), "user-1", from, to); !errors.Is(err, core.ErrInvalidRange) {
		t.Errorf("ListInRange inverted: got %v, want ErrInvalidRange", err)
	}
}
