/*
limits.go - Card spending-limit evaluation

PURPOSE:
  Decides whether a candidate card payment would breach the card's daily,
  weekly or monthly ceiling. The evaluator is a pure function of the
  card's existing card-payment history, the candidate amount and time, and
  the three ceilings; the engine fetches the history and the card.

WINDOWS:
  Each window is trailing, ending at the candidate's timestamp:
    daily   = [t - 24h,  t]
    weekly  = [t - 7d,   t]
    monthly = [t - 30d,  t]
  Windows are checked tightest first (daily -> weekly -> monthly) so the
  cheapest, most common rejection is surfaced first.

ZERO CEILINGS:
  Whether a zero/unset ceiling means "no limit" or "always reject" is a
  policy decision (the upstream signatures do not pin it down). The
  evaluator takes it as configuration; the engine defaults to "no limit".

SEE ALSO:
  - engine.go: Calls Evaluate before any balance mutation
  - errors.go: LimitExceededError carries the breached window
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIMIT WINDOWS
// =============================================================================

type LimitWindow string

const (
	WindowDaily   LimitWindow = "daily"
	WindowWeekly  LimitWindow = "weekly"
	WindowMonthly LimitWindow = "monthly"
)

// Duration returns the trailing span of the window.
func (w LimitWindow) Duration() time.Duration {
	switch w {
	case WindowDaily:
		return 24 * time.Hour
	case WindowWeekly:
		return 7 * 24 * time.Hour
	case WindowMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// checkOrder is tightest window first.
var checkOrder = []LimitWindow{WindowDaily, WindowWeekly, WindowMonthly}

// =============================================================================
// LIMIT EVALUATOR
// =============================================================================

// LimitEvaluator applies a card's ceilings to its card-payment history.
// The zero value rejects on zero ceilings; use NewLimitEvaluator for the
// engine default (zero ceiling = unlimited).
type LimitEvaluator struct {
	// ZeroCeilingUnlimited controls the semantics of a zero/unset ceiling:
	// true  = the window has no limit
	// false = the window admits nothing
	ZeroCeilingUnlimited bool
}

func NewLimitEvaluator() LimitEvaluator {
	return LimitEvaluator{ZeroCeilingUnlimited: true}
}

// Evaluate checks the candidate charge against all three windows. history
// must contain only card-payment movements for the same card; movements
// outside a window are ignored, so passing a 30-day slice covers all
// windows. Returns nil on approval or a LimitExceededError naming the
// first breached window.
func (e LimitEvaluator) Evaluate(card Card, history []*Movement, amount decimal.Decimal, at time.Time) error {
	for _, w := range checkOrder {
		ceiling := e.ceilingFor(card, w)
		if ceiling == nil {
			continue
		}
		spent := sumWindow(history, at.Add(-w.Duration()), at)
		if spent.Add(amount).GreaterThan(*ceiling) {
			return &LimitExceededError{
				Card:    card.Ref,
				Window:  w,
				Spent:   spent,
				Amount:  amount,
				Ceiling: *ceiling,
			}
		}
	}
	return nil
}

// ceilingFor returns the effective ceiling for a window, or nil when the
// window is unbounded.
func (e LimitEvaluator) ceilingFor(card Card, w LimitWindow) *decimal.Decimal {
	var c decimal.Decimal
	switch w {
	case WindowDaily:
		c = card.DailyCeiling
	case WindowWeekly:
		c = card.WeeklyCeiling
	case WindowMonthly:
		c = card.MonthlyCeiling
	}
	if c.IsZero() && e.ZeroCeilingUnlimited {
		return nil
	}
	return &c
}

// sumWindow totals card-payment amounts with CreatedAt in [from, to].
func sumWindow(history []*Movement, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, mv := range history {
		if mv.Type != TypeCardPayment || mv.CardPayment == nil {
			continue
		}
		if mv.CreatedAt.Before(from) || mv.CreatedAt.After(to) {
			continue
		}
		total = total.Add(mv.CardPayment.Amount)
	}
	return total
}
