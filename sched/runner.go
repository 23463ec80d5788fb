/*
Package sched drives recurring direct-debit execution.

PURPOSE:
  The engine exposes ExecuteDueDirectDebits but never self-schedules; an
  external collaborator owns the cadence. Runner is that collaborator: a
  ticker loop that asks the engine to execute everything due, logging the
  outcome of each run.

  Each run is independent. A failed run is logged and the next tick tries
  again; the engine's schedule-advance semantics guarantee an occurrence
  is never executed twice for the same period.

USAGE:
  r := sched.NewRunner(eng, time.Hour)
  go r.Run(ctx)

SEE ALSO:
  - ledger/engine.go: ExecuteDueDirectDebits
*/
package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/vivesbank/banking-engine/ledger"
)

// Executor is the slice of the engine the runner needs.
type Executor interface {
	ExecuteDueDirectDebits(ctx context.Context, now time.Time) ([]*ledger.Movement, error)
}

// Runner executes due recurring direct debits on a fixed interval.
type Runner struct {
	exec     Executor
	interval time.Duration
	now      func() time.Time
}

func NewRunner(exec Executor, interval time.Duration) *Runner {
	return &Runner{exec: exec, interval: interval, now: time.Now}
}

// Run blocks until ctx is canceled, executing one pass per tick. A pass
// also runs immediately on start so a restarted server catches up.
func (r *Runner) Run(ctx context.Context) {
	r.pass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	executed, err := r.exec.ExecuteDueDirectDebits(ctx, r.now())
	if err != nil {
		slog.Error("direct-debit run failed", "error", err, "executed", len(executed))
		return
	}
	if len(executed) > 0 {
		slog.Info("direct-debit run complete", "executed", len(executed))
	}
}
