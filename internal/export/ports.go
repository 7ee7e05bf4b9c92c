// Package export defines the statement export surface: paid tasks are
// appended as rows to an external statement sheet.
package export

import "context"

// StatementRow is one exported line of the payment statement.
type StatementRow struct {
	TaskID      int64
	UserID      string
	ExpenseName string
	Month       string // "YYYY-MM" the task was generated for
	DueDate     string // "YYYY-MM-DD"
	Amount      string // decimal, e.g. "15.99"
	Currency    string
	PaidAt      string // RFC3339
}

// StatementWriter appends a row and returns a backend-specific reference to
// the written location.
type StatementWriter interface {
	Append(ctx context.Context, row StatementRow) (string, error)
}
