package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintask/internal/core"

	_ "modernc.org/sqlite"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (*core.Category, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO category (user_id, name, type, created_at) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, c.Type, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("category insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return &c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM category WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &createdAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, userID string, id int64, name, categoryType string) (*core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE category SET name = ?, type = ? WHERE id = ? AND user_id = ?`,
		name, categoryType, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return r.getCategory(ctx, userID, id)
}

func (r *SQLiteRepository) getCategory(ctx context.Context, userID string, id int64) (*core.Category, error) {
	var c core.Category
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM category WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM category WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CountCategories(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM category WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

// --- Expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.RecurringExpense) (*core.RecurringExpense, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expense (user_id, name, amount_cents, currency, type, category_id, due_day, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		e.UserID, e.Name, e.Amount.Cents, e.Currency, string(e.Type), nullableID(e.CategoryID), e.DueDay,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("expense insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"user_id", e.UserID,
		"name", e.Name,
		"amount_cents", e.Amount.Cents,
		"type", e.Type,
		"due_day", e.DueDay)

	return &e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID string, id int64) (*core.RecurringExpense, error) {
	row := r.db.QueryRowContext(ctx,
		expenseColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		expenseColumns+` WHERE user_id = ? AND archived = 0 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// ListActiveRecurringExpenses returns the non-archived recurring expenses
// that participate in monthly task generation.
func (r *SQLiteRepository) ListActiveRecurringExpenses(ctx context.Context, userID string) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		expenseColumns+` WHERE user_id = ? AND archived = 0 AND type = ? ORDER BY id`,
		userID, string(core.Recurring))
	if err != nil {
		return nil, fmt.Errorf("list active recurring expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// ListUserIDsWithRecurring returns the distinct owners of active recurring
// expenses. The monthly scheduler iterates this set; users without active
// recurring expenses would generate nothing anyway.
func (r *SQLiteRepository) ListUserIDsWithRecurring(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM expense WHERE archived = 0 AND type = ? ORDER BY user_id`,
		string(core.Recurring))
	if err != nil {
		return nil, fmt.Errorf("list users with recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.RecurringExpense) (*core.RecurringExpense, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE expense SET name = ?, amount_cents = ?, currency = ?, type = ?, category_id = ?, due_day = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		e.Name, e.Amount.Cents, e.Currency, string(e.Type), nullableID(e.CategoryID), e.DueDay,
		now.Format(timeLayout), e.ID, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *SQLiteRepository) ArchiveExpense(ctx context.Context, userID string, id int64) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE expense SET archived = 1, updated_at = ? WHERE id = ? AND user_id = ?`,
		now.Format(timeLayout), id, userID)
	if err != nil {
		return fmt.Errorf("archive expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expense WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SumActiveExpenseAmounts totals the amounts of all non-archived expenses,
// recurring and one-time alike. Dashboard stats read defined obligations,
// not generated tasks.
func (r *SQLiteRepository) SumActiveExpenseAmounts(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM expense WHERE user_id = ? AND archived = 0`,
		userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active expense amounts: %w", err)
	}
	return total, nil
}

// --- Financial tasks ---

// InsertTask persists a task candidate. The UNIQUE(expense_id, generated_for)
// constraint makes the insert idempotent across concurrent callers and
// process instances: on conflict the existing row wins and created is false.
func (r *SQLiteRepository) InsertTask(ctx context.Context, t core.FinancialTask) (*core.FinancialTask, bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO fin_task (user_id, expense_id, amount_cents, status, generated_for, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(expense_id, generated_for) DO NOTHING`,
		t.UserID, t.ExpenseID, t.Amount.Cents, string(t.Status), t.GeneratedFor.Token(),
		t.DueDate.Format(dateLayout), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, false, fmt.Errorf("insert task: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := r.FindTask(ctx, t.UserID, t.ExpenseID, t.GeneratedFor)
		if err != nil {
			return nil, false, fmt.Errorf("refetch existing task: %w", err)
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("task insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return &t, true, nil
}

// FindTask looks up the task generated for (expense, month), scoped by user.
func (r *SQLiteRepository) FindTask(ctx context.Context, userID string, expenseID int64, month core.Month) (*core.FinancialTask, error) {
	row := r.db.QueryRowContext(ctx,
		taskColumns+` WHERE expense_id = ? AND generated_for = ? AND user_id = ?`,
		expenseID, month.Token(), userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) GetTask(ctx context.Context, userID string, id int64) (*core.FinancialTask, error) {
	row := r.db.QueryRowContext(ctx,
		taskColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTaskStatus applies from -> to as a compare-and-swap: the update only
// lands if the stored status still equals from, so a concurrent transition
// cannot be silently overwritten.
func (r *SQLiteRepository) UpdateTaskStatus(ctx context.Context, userID string, id int64, from, to core.TaskStatus) (*core.FinancialTask, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE fin_task SET status = ?, updated_at = ? WHERE id = ? AND user_id = ? AND status = ?`,
		string(to), now.Format(timeLayout), id, userID, string(from))
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTask(ctx, userID, id); err != nil {
			return nil, err
		}
		// Row exists but the status moved underneath us
		return nil, fmt.Errorf("%w: task %d no longer in status %s", core.ErrInvalidTransition, id, from)
	}
	return r.GetTask(ctx, userID, id)
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, userID string) ([]core.FinancialTask, error) {
	rows, err := r.db.QueryContext(ctx,
		taskColumns+` WHERE user_id = ? ORDER BY due_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *SQLiteRepository) ListTasksForMonth(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error) {
	rows, err := r.db.QueryContext(ctx,
		taskColumns+` WHERE user_id = ? AND generated_for = ? ORDER BY due_date, id`,
		userID, month.Token())
	if err != nil {
		return nil, fmt.Errorf("list tasks for month: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *SQLiteRepository) ListTasksInRange(ctx context.Context, userID string, from, to time.Time) ([]core.FinancialTask, error) {
	rows, err := r.db.QueryContext(ctx,
		taskColumns+` WHERE user_id = ? AND due_date >= ? AND due_date <= ? ORDER BY due_date, id`,
		userID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list tasks in range: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// PendingExportTask carries a paid task together with the expense fields the
// statement exporter needs for a row.
type PendingExportTask struct {
	Task        core.FinancialTask
	ExpenseName string
	Currency    string
}

// ListPendingExportTasks returns paid tasks that have not been exported yet.
// This backs the export worker's catch-up sweep when queue messages are lost.
func (r *SQLiteRepository) ListPendingExportTasks(ctx context.Context, limit int) ([]PendingExportTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.expense_id, t.amount_cents, t.status, t.generated_for, t.due_date, t.created_at, t.updated_at,
		        e.name, e.currency
		 FROM fin_task t JOIN expense e ON e.id = t.expense_id
		 WHERE t.status = ? AND t.export_status = 'pending'
		 ORDER BY t.updated_at LIMIT ?`,
		string(core.StatusPaid), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending export tasks: %w", err)
	}
	defer rows.Close()

	var out []PendingExportTask
	for rows.Next() {
		var p PendingExportTask
		var status, generatedFor, dueDate, createdAt, updatedAt string
		if err := rows.Scan(&p.Task.ID, &p.Task.UserID, &p.Task.ExpenseID, &p.Task.Amount.Cents,
			&status, &generatedFor, &dueDate, &createdAt, &updatedAt,
			&p.ExpenseName, &p.Currency); err != nil {
			return nil, fmt.Errorf("scan pending export task: %w", err)
		}
		fillTaskTimes(&p.Task, status, generatedFor, dueDate, createdAt, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkTaskExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE fin_task SET export_status = 'synced' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark task exported: %w", err)
	}
	slog.InfoContext(ctx, "Task marked as exported", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkTaskExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE fin_task SET export_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark task export error: %w", err)
	}
	slog.WarnContext(ctx, "Task marked with export error", "id", id)
	return nil
}

// --- scan helpers ---

const expenseColumns = `SELECT id, user_id, name, amount_cents, currency, type, category_id, due_day, archived, created_at, updated_at FROM expense`

const taskColumns = `SELECT id, user_id, expense_id, amount_cents, status, generated_for, due_date, created_at, updated_at FROM fin_task`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*core.RecurringExpense, error) {
	var e core.RecurringExpense
	var expenseType, createdAt, updatedAt string
	var categoryID sql.NullInt64
	var archived int
	if err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Amount.Cents, &e.Currency, &expenseType,
		&categoryID, &e.DueDay, &archived, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Type = core.ExpenseType(expenseType)
	e.CategoryID = categoryID.Int64
	e.Archived = archived != 0
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &e, nil
}

func collectExpenses(rows *sql.Rows) ([]core.RecurringExpense, error) {
	var out []core.RecurringExpense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*core.FinancialTask, error) {
	var t core.FinancialTask
	var status, generatedFor, dueDate, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.UserID, &t.ExpenseID, &t.Amount.Cents,
		&status, &generatedFor, &dueDate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	fillTaskTimes(&t, status, generatedFor, dueDate, createdAt, updatedAt)
	return &t, nil
}

func fillTaskTimes(t *core.FinancialTask, status, generatedFor, dueDate, createdAt, updatedAt string) {
	t.Status = core.TaskStatus(status)
	if m, err := core.ParseMonth(generatedFor); err == nil {
		t.GeneratedFor = m
	}
	t.DueDate, _ = time.Parse(dateLayout, dueDate)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
}

func collectTasks(rows *sql.Rows) ([]core.FinancialTask, error) {
	var out []core.FinancialTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
