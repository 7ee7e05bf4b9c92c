// Package scheduler runs monthly task generation for every user with active
// recurring expenses.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintask/internal/core"
)

type UserLister interface {
	ListUserIDsWithRecurring(ctx context.Context) ([]string, error)
}

type Generator interface {
	Generate(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error)
}

// Monthly fires on the first day of each month at 00:01 and fans generation
// out across users with bounded concurrency. One user's failure never blocks
// the others; generation itself is idempotent, so an extra run is harmless.
type Monthly struct {
	users       UserLister
	generator   Generator
	concurrency int
	now         func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewMonthly(users UserLister, generator Generator, concurrency int) *Monthly {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Monthly{
		users:       users,
		generator:   generator,
		concurrency: concurrency,
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the scheduler loop. It runs a catch-up pass immediately so
// a process that was down across a month boundary still generates that
// month's tasks, then sleeps until the next first-of-month fire time.
func (m *Monthly) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monthly) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monthly) run(ctx context.Context) {
	defer close(m.done)

	m.RunOnce(ctx, core.MonthOf(m.now()))

	for {
		fireAt := nextFire(m.now())
		timer := time.NewTimer(time.Until(fireAt))

		select {
		case <-timer.C:
			m.RunOnce(ctx, core.MonthOf(m.now()))
		case <-m.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// RunOnce generates the given month's tasks for every eligible user. The
// manual trigger and the timer both land here.
func (m *Monthly) RunOnce(ctx context.Context, month core.Month) {
	start := m.now()
	userIDs, err := m.users.ListUserIDsWithRecurring(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Scheduler failed to list users", "error", err)
		return
	}

	slog.InfoContext(ctx, "Monthly generation run starting",
		"month", month.Token(),
		"users", len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			if _, err := m.generator.Generate(gctx, userID, month); err != nil {
				// Fault isolation: log and keep the other users going
				slog.ErrorContext(gctx, "Generation failed for user",
					"user_id", userID,
					"month", month.Token(),
					"error", err)
			}
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "Monthly generation run finished",
		"month", month.Token(),
		"users", len(userIDs),
		"duration", m.now().Sub(start).String())
}

// nextFire returns 00:01 on the first day of the month after now.
func nextFire(now time.Time) time.Time {
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 1, 0, 0, now.Location()).AddDate(0, 1, 0)
	return firstOfNext
}
