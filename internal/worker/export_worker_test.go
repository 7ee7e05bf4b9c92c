package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintask/internal/amqp"
	"fintask/internal/core"
	"fintask/internal/export"
	"fintask/internal/export/memory"
	"fintask/internal/storage"
)

type fakeTaskStore struct {
	tasks    map[int64]*core.FinancialTask
	expenses map[int64]*core.RecurringExpense
	pending  []storage.PendingExportTask

	exported    []int64
	exportError []int64
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:    make(map[int64]*core.FinancialTask),
		expenses: make(map[int64]*core.RecurringExpense),
	}
}

func (f *fakeTaskStore) GetTask(_ context.Context, userID string, id int64) (*core.FinancialTask, error) {
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, core.ErrNotFound
	}
	return t, nil
}

func (f *fakeTaskStore) GetExpense(_ context.Context, userID string, id int64) (*core.RecurringExpense, error) {
	e, ok := f.expenses[id]
	if !ok || e.UserID != userID {
		return nil, core.ErrNotFound
	}
	return e, nil
}

func (f *fakeTaskStore) ListPendingExportTasks(_ context.Context, limit int) ([]storage.PendingExportTask, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeTaskStore) MarkTaskExported(_ context.Context, id int64) error {
	f.exported = append(f.exported, id)
	return nil
}

func (f *fakeTaskStore) MarkTaskExportError(_ context.Context, id int64) error {
	f.exportError = append(f.exportError, id)
	return nil
}

type failingWriter struct{}

func (failingWriter) Append(context.Context, export.StatementRow) (string, error) {
	return "", errors.New("sheets unavailable")
}

func paidTask(id int64) *core.FinancialTask {
	return &core.FinancialTask{
		ID:           id,
		UserID:       "user-1",
		ExpenseID:    1,
		Amount:       core.Money{Cents: 1599},
		Status:       core.StatusPaid,
		GeneratedFor: core.NewMonth(2026, time.February),
		DueDate:      time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, time.February, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandleTaskEvent_ExportsPaidTask(t *testing.T) {
	store := newFakeTaskStore()
	store.tasks[7] = paidTask(7)
	store.expenses[1] = &core.RecurringExpense{ID: 1, UserID: "user-1", Name: "Streaming", Currency: "EUR"}
	sink := memory.New()
	w := NewExportWorker(store, sink, 10)

	err := w.HandleTaskEvent(context.Background(), &amqp.TaskEventMessage{TaskID: 7, UserID: "user-1", Event: "paid"})
	if err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	rows := sink.Rows()
	if len(rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.ExpenseName != "Streaming" || row.Amount != "15.99" || row.Month != "2026-02" || row.DueDate != "2026-02-28" {
		t.Errorf("unexpected row: %+v", row)
	}
	if len(store.exported) != 1 || store.exported[0] != 7 {
		t.Errorf("exported marks = %v, want [7]", store.exported)
	}
}

func TestHandleTaskEvent_IgnoresNonPaidEvents(t *testing.T) {
	store := newFakeTaskStore()
	sink := memory.New()
	w := NewExportWorker(store, sink, 10)

	if err := w.HandleTaskEvent(context.Background(), &amqp.TaskEventMessage{TaskID: 7, UserID: "user-1", Event: "generated"}); err != nil {
		t.Fatalf("HandleTaskEvent(generated): %v", err)
	}
	if len(sink.Rows()) != 0 {
		t.Error("generated event should not export anything")
	}
}

func TestHandleTaskEvent_MissingTaskAcks(t *testing.T) {
	w := NewExportWorker(newFakeTaskStore(), memory.New(), 10)
	if err := w.HandleTaskEvent(context.Background(), &amqp.TaskEventMessage{TaskID: 99, UserID: "user-1", Event: "paid"}); err != nil {
		t.Errorf("missing task should ack, got error: %v", err)
	}
}

func TestHandleTaskEvent_WriterFailureMarksErrorAndRequeues(t *testing.T) {
	store := newFakeTaskStore()
	store.tasks[7] = paidTask(7)
	store.expenses[1] = &core.RecurringExpense{ID: 1, UserID: "user-1", Name: "Streaming", Currency: "EUR"}
	w := NewExportWorker(store, failingWriter{}, 10)

	err := w.HandleTaskEvent(context.Background(), &amqp.TaskEventMessage{TaskID: 7, UserID: "user-1", Event: "paid"})
	if err == nil {
		t.Fatal("expected error from failing writer")
	}
	if len(store.exportError) != 1 || store.exportError[0] != 7 {
		t.Errorf("export error marks = %v, want [7]", store.exportError)
	}
	if len(store.exported) != 0 {
		t.Errorf("exported marks = %v, want none", store.exported)
	}
}

func TestProcessPendingExports(t *testing.T) {
	store := newFakeTaskStore()
	store.pending = []storage.PendingExportTask{
		{Task: *paidTask(1), ExpenseName: "Rent", Currency: "EUR"},
		{Task: *paidTask(2), ExpenseName: "Internet", Currency: "EUR"},
	}
	sink := memory.New()
	w := NewExportWorker(store, sink, 10)

	n, err := w.ProcessPendingExports(context.Background())
	if err != nil {
		t.Fatalf("ProcessPendingExports: %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d, want 2", n)
	}
	if len(sink.Rows()) != 2 {
		t.Errorf("sink holds %d rows, want 2", len(sink.Rows()))
	}
}

func TestProcessPendingExports_ContinuesPastFailures(t *testing.T) {
	store := newFakeTaskStore()
	store.pending = []storage.PendingExportTask{
		{Task: *paidTask(1), ExpenseName: "Rent", Currency: "EUR"},
	}
	w := NewExportWorker(store, failingWriter{}, 10)

	n, err := w.ProcessPendingExports(context.Background())
	if err != nil {
		t.Fatalf("ProcessPendingExports: %v", err)
	}
	if n != 0 {
		t.Errorf("exported %d, want 0", n)
	}
	if len(store.exportError) != 1 {
		t.Errorf("export error marks = %v, want one", store.exportError)
	}
}
