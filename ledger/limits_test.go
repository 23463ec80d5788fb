package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivesbank/banking-engine/ledger"
)

var evalAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func cardWith(daily, weekly, monthly int64) ledger.Card {
	return ledger.Card{
		Ref:            "card-1",
		LinkedAccount:  "acc-1",
		DailyCeiling:   decimal.NewFromInt(daily),
		WeeklyCeiling:  decimal.NewFromInt(weekly),
		MonthlyCeiling: decimal.NewFromInt(monthly),
	}
}

func chargeAt(amount int64, at time.Time) *ledger.Movement {
	return &ledger.Movement{
		GUID:      ledger.NewMovementGUID(),
		Type:      ledger.TypeCardPayment,
		CreatedAt: at,
		CardPayment: &ledger.CardPayment{
			Card:   "card-1",
			Amount: decimal.NewFromInt(amount),
		},
	}
}

func TestEvaluate_ApprovesWithinAllCeilings(t *testing.T) {
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{chargeAt(40, evalAt.Add(-time.Hour))}

	err := e.Evaluate(cardWith(100, 500, 2000), history,
		decimal.NewFromInt(50), evalAt)
	assert.NoError(t, err)
}

func TestEvaluate_ExactCeilingIsApproved(t *testing.T) {
	// Spending up to the ceiling is allowed; only exceeding it rejects.
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{chargeAt(40, evalAt.Add(-time.Hour))}

	err := e.Evaluate(cardWith(100, 0, 0), history,
		decimal.NewFromInt(60), evalAt)
	assert.NoError(t, err)

	err = e.Evaluate(cardWith(100, 0, 0), history,
		decimal.NewFromInt(61), evalAt)
	assert.Error(t, err)
}

func TestEvaluate_ReportsTightestBreachedWindow(t *testing.T) {
	// Both daily and weekly would be breached; daily is reported because
	// windows are checked tightest first.
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{chargeAt(90, evalAt.Add(-time.Hour))}

	err := e.Evaluate(cardWith(100, 100, 0), history,
		decimal.NewFromInt(20), evalAt)

	var le *ledger.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ledger.WindowDaily, le.Window)
	assert.True(t, le.Ceiling.Equal(decimal.NewFromInt(100)))
}

func TestEvaluate_WindowBoundariesAreTrailing(t *testing.T) {
	// A charge 24h+1s old is outside the daily window but inside weekly.
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{
		chargeAt(90, evalAt.Add(-24*time.Hour-time.Second)),
	}

	err := e.Evaluate(cardWith(100, 0, 0), history,
		decimal.NewFromInt(50), evalAt)
	assert.NoError(t, err)

	err = e.Evaluate(cardWith(0, 100, 0), history,
		decimal.NewFromInt(50), evalAt)
	var le *ledger.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ledger.WindowWeekly, le.Window)
}

func TestEvaluate_MonthlyWindow(t *testing.T) {
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{
		chargeAt(900, evalAt.AddDate(0, 0, -20)),
		chargeAt(90, evalAt.AddDate(0, 0, -31)), // outside 30d
	}

	err := e.Evaluate(cardWith(0, 0, 1000), history,
		decimal.NewFromInt(100), evalAt)
	assert.NoError(t, err)

	err = e.Evaluate(cardWith(0, 0, 1000), history,
		decimal.NewFromInt(101), evalAt)
	var le *ledger.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ledger.WindowMonthly, le.Window)
	assert.True(t, le.Spent.Equal(decimal.NewFromInt(900)))
}

func TestEvaluate_ZeroCeilingPolicy(t *testing.T) {
	// GIVEN: a card with every ceiling unset
	// WHEN: evaluated under each zero-ceiling policy
	// THEN: unlimited approves, strict rejects everything

	unlimited := ledger.LimitEvaluator{ZeroCeilingUnlimited: true}
	err := unlimited.Evaluate(cardWith(0, 0, 0), nil,
		decimal.NewFromInt(1_000_000), evalAt)
	assert.NoError(t, err)

	strict := ledger.LimitEvaluator{ZeroCeilingUnlimited: false}
	err = strict.Evaluate(cardWith(0, 0, 0), nil,
		decimal.NewFromInt(1), evalAt)
	assert.Error(t, err)
}

func TestEvaluate_IgnoresNonCardMovements(t *testing.T) {
	// Defense against callers passing a mixed history slice.
	e := ledger.NewLimitEvaluator()
	history := []*ledger.Movement{
		{
			GUID:      ledger.NewMovementGUID(),
			Type:      ledger.TypeDirectDebit,
			CreatedAt: evalAt.Add(-time.Hour),
			DirectDebit: &ledger.DirectDebit{
				Source: "acc-1",
				Amount: decimal.NewFromInt(500),
			},
		},
	}

	err := e.Evaluate(cardWith(100, 0, 0), history,
		decimal.NewFromInt(100), evalAt)
	assert.NoError(t, err)
}
