package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Recurring ExpenseType = "recurring"
	OneTime   ExpenseType = "one-time"
)

const (
	StatusPending TaskStatus = "pending"
	StatusPaid    TaskStatus = "paid"
	StatusHold    TaskStatus = "hold"
)

type (
	ExpenseType string

	// TaskStatus is the closed set of financial task states.
	TaskStatus string

	Money struct {
		Cents int64
	}

	// Month identifies a calendar year+month, independent of day.
	Month struct {
		Year  int
		Month time.Month
	}

	// RecurringExpense is a user-defined obligation. Only non-archived
	// expenses of type Recurring participate in task generation.
	RecurringExpense struct {
		ID         int64
		UserID     string
		Name       string
		Amount     Money
		Currency   string
		Type       ExpenseType
		CategoryID int64 // 0 when uncategorized
		DueDay     int   // day of month when payment is due
		Archived   bool
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// FinancialTask is a concrete, month-specific payable instance derived
	// from a recurring expense. Amount is snapshotted at generation time and
	// never follows later expense edits.
	FinancialTask struct {
		ID           int64
		UserID       string
		ExpenseID    int64
		Amount       Money
		Status       TaskStatus
		GeneratedFor Month
		DueDate      time.Time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Category struct {
		ID        int64
		UserID    string
		Name      string
		Type      string
		CreatedAt time.Time
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDueDay     = errors.New("invalid due day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrInvalidType       = errors.New("invalid expense type")
	ErrEmptyName         = errors.New("empty name")
)

// transitions lists the allowed edges of the task status machine.
// Paid is terminal; holds persist until a user acts on them.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending: {StatusPaid, StatusHold},
	StatusHold:    {StatusPaid},
	StatusPaid:    {},
}

// ParseTaskStatus validates a status literal at the boundary. Anything
// outside the three known states is rejected with ErrInvalidStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusPaid, StatusHold:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Valid reports whether the status is one of the three known states.
func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	edges, ok := transitions[s]
	return ok && len(edges) == 0
}

// CanTransition reports whether the edge from -> to is permitted.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewMonth builds a month token for the given year and month.
func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month token of the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a "YYYY-MM" token.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// Token renders the canonical "YYYY-MM" form used as the storage key.
func (m Month) Token() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) Validate() error {
	if m.Year < 1 || m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

// DaysIn returns the number of days in the month, leap years included.
func (m Month) DaysIn() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the last day of the month.
func (m Month) End() time.Time {
	return time.Date(m.Year, m.Month, m.DaysIn(), 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside this calendar month.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// DueDate resolves a day-of-month against this month, clamping days the
// month does not have (dueDay=31 in February yields Feb 28/29). Out-of-range
// input is clamped too rather than producing an invalid date.
func (m Month) DueDate(dueDay int) time.Time {
	if dueDay < 1 {
		dueDay = 1
	}
	if last := m.DaysIn(); dueDay > last {
		dueDay = last
	}
	return time.Date(m.Year, m.Month, dueDay, 0, 0, 0, 0, time.UTC)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t ExpenseType) Valid() bool {
	return t == Recurring || t == OneTime
}

func (e RecurringExpense) Validate() error {
	if len(strings.TrimSpace(e.Name)) == 0 {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Type.Valid() {
		return ErrInvalidType
	}
	if e.DueDay < 1 || e.DueDay > 31 {
		return ErrInvalidDueDay
	}
	if strings.TrimSpace(e.Currency) == "" {
		return errors.New("empty currency")
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(strings.TrimSpace(c.Type)) == 0 {
		return errors.New("empty category type")
	}
	return nil
}
