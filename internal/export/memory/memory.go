// Package memory holds an in-memory statement writer for tests and local
// runs without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintask/internal/export"
)

type Writer struct {
	mu   sync.Mutex
	rows []export.StatementRow
}

func New() *Writer {
	return &Writer{}
}

var _ export.StatementWriter = (*Writer)(nil)

func (w *Writer) Append(_ context.Context, row export.StatementRow) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return fmt.Sprintf("memory:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []export.StatementRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]export.StatementRow, len(w.rows))
	copy(out, w.rows)
	return out
}
