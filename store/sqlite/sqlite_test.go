package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivesbank/banking-engine/ledger"
	"github.com/vivesbank/banking-engine/store/sqlite"
)

var t0 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedAccount(t *testing.T, st *sqlite.Store, ref ledger.AccountRef, owner ledger.ClientGUID, balance int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.PutClient(ctx, ledger.Client{GUID: owner, Active: true}, "Test Client"))
	require.NoError(t, st.PutAccount(ctx, ledger.Account{
		Ref:             ref,
		OwnerClientGUID: owner,
		Balance:         decimal.NewFromInt(balance),
		Active:          true,
	}))
}

func transferMovement(guid ledger.MovementGUID, at time.Time) *ledger.Movement {
	return &ledger.Movement{
		GUID:       guid,
		ClientGUID: "cli-1",
		Type:       ledger.TypeTransfer,
		CreatedAt:  at,
		Transfer: &ledger.Transfer{
			Source:      "acc-1",
			Destination: "acc-2",
			Amount:      decimal.RequireFromString("30.50"),
			Concept:     "rent",
		},
	}
}

// =============================================================================
// MOVEMENT STORE
// =============================================================================

func TestMovementRoundTrips(t *testing.T) {
	// Every movement type survives the flat-row encoding unchanged.
	st := newStore(t)
	ctx := context.Background()

	movements := []*ledger.Movement{
		{
			GUID: "mv-card", ClientGUID: "cli-1",
			Type: ledger.TypeCardPayment, CreatedAt: t0,
			CardPayment: &ledger.CardPayment{
				Card: "card-1", Merchant: "grocer",
				Amount: decimal.RequireFromString("12.34"),
			},
		},
		{
			GUID: "mv-payroll", ClientGUID: "cli-1",
			Type: ledger.TypePayroll, CreatedAt: t0.Add(time.Minute),
			Payroll: &ledger.Payroll{
				Destination: "acc-1", PayerID: "B12345678",
				Amount: decimal.NewFromInt(1500),
			},
		},
		{
			GUID: "mv-debit", ClientGUID: "cli-1",
			Type: ledger.TypeDirectDebit, CreatedAt: t0.Add(2 * time.Minute),
			DirectDebit: &ledger.DirectDebit{
				Source: "acc-1", CreditorID: "gym",
				Amount:        decimal.NewFromInt(30),
				Periodicity:   ledger.PeriodMonthly,
				NextExecution: t0.AddDate(0, 1, 0),
			},
		},
		transferMovement("mv-transfer", t0.Add(3*time.Minute)),
	}
	for _, mv := range movements {
		require.NoError(t, st.Insert(ctx, mv))
	}

	for _, want := range movements {
		got, err := st.GetByGUID(ctx, want.GUID)
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
		assert.True(t, got.Amount().Equal(want.Amount()), "amount of %s", want.GUID)
	}

	got, err := st.GetByGUID(ctx, "mv-debit")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodMonthly, got.DirectDebit.Periodicity)
	assert.True(t, got.DirectDebit.NextExecution.Equal(t0.AddDate(0, 1, 0)))

	got, err = st.GetByGUID(ctx, "mv-transfer")
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Transfer.Concept)
	assert.Equal(t, ledger.AccountRef("acc-2"), got.Transfer.Destination)
}

func TestInsert_DuplicateGuid(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, transferMovement("mv-1", t0)))
	err := st.Insert(ctx, transferMovement("mv-1", t0))
	assert.ErrorIs(t, err, ledger.ErrDuplicateMovement)
}

func TestGetByGUID_Unknown(t *testing.T) {
	st := newStore(t)
	_, err := st.GetByGUID(context.Background(), "mv-nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestGetByClient_PaginatesNewestFirst(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mv := transferMovement(ledger.MovementGUID(fmt.Sprintf("mv-%d", i)),
			t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, st.Insert(ctx, mv))
	}

	page, err := st.GetByClient(ctx, "cli-1", ledger.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalItems)
	require.Len(t, page.Content, 2)
	assert.Equal(t, ledger.MovementGUID("mv-4"), page.Content[0].GUID)

	page, err = st.GetByClient(ctx, "cli-2", ledger.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
}

func TestCardPaymentsSince_WindowFilter(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	charge := func(guid ledger.MovementGUID, at time.Time) *ledger.Movement {
		return &ledger.Movement{
			GUID: guid, ClientGUID: "cli-1",
			Type: ledger.TypeCardPayment, CreatedAt: at,
			CardPayment: &ledger.CardPayment{
				Card: "card-1", Merchant: "grocer",
				Amount: decimal.NewFromInt(10),
			},
		}
	}
	require.NoError(t, st.Insert(ctx, charge("in-window", t0.Add(-time.Hour))))
	require.NoError(t, st.Insert(ctx, charge("too-old", t0.Add(-48*time.Hour))))

	got, err := st.CardPaymentsSince(ctx, "card-1", t0.Add(-24*time.Hour), t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.MovementGUID("in-window"), got[0].GUID)
}

func TestMarkReversed_GuardedOnce(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, transferMovement("mv-1", t0)))

	require.NoError(t, st.MarkReversed(ctx, "mv-1"))

	got, err := st.GetByGUID(ctx, "mv-1")
	require.NoError(t, err)
	assert.True(t, got.IsReversed)

	assert.ErrorIs(t, st.MarkReversed(ctx, "mv-1"), ledger.ErrAlreadyReversed)
	assert.True(t, ledger.IsNotFound(st.MarkReversed(ctx, "mv-nope")))
}

func TestDueDirectDebits_AndAdvance(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	due := &ledger.Movement{
		GUID: "due", ClientGUID: "cli-1",
		Type: ledger.TypeDirectDebit, CreatedAt: t0.AddDate(0, -1, 0),
		DirectDebit: &ledger.DirectDebit{
			Source: "acc-1", CreditorID: "gym",
			Amount:        decimal.NewFromInt(30),
			Periodicity:   ledger.PeriodMonthly,
			NextExecution: t0,
		},
	}
	future := &ledger.Movement{
		GUID: "future", ClientGUID: "cli-1",
		Type: ledger.TypeDirectDebit, CreatedAt: t0,
		DirectDebit: &ledger.DirectDebit{
			Source: "acc-1", CreditorID: "gym",
			Amount:        decimal.NewFromInt(30),
			Periodicity:   ledger.PeriodMonthly,
			NextExecution: t0.AddDate(0, 1, 0),
		},
	}
	oneOff := &ledger.Movement{
		GUID: "one-off", ClientGUID: "cli-1",
		Type: ledger.TypeDirectDebit, CreatedAt: t0,
		DirectDebit: &ledger.DirectDebit{
			Source: "acc-1", CreditorID: "gym",
			Amount:      decimal.NewFromInt(30),
			Periodicity: ledger.PeriodOnce,
		},
	}
	for _, mv := range []*ledger.Movement{due, future, oneOff} {
		require.NoError(t, st.Insert(ctx, mv))
	}

	got, err := st.DueDirectDebits(ctx, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.MovementGUID("due"), got[0].GUID)

	require.NoError(t, st.AdvanceDirectDebit(ctx, "due", t0.AddDate(0, 1, 0)))

	got, err = st.DueDirectDebits(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDirectoryRoundTrips(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acc-1", "cli-1", 100)
	require.NoError(t, st.PutCard(ctx, ledger.Card{
		Ref:           "card-1",
		LinkedAccount: "acc-1",
		DailyCeiling:  decimal.RequireFromString("500.25"),
	}))

	acc, err := st.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.ClientGUID("cli-1"), acc.OwnerClientGUID)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, acc.Active)

	card, err := st.GetCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountRef("acc-1"), card.LinkedAccount)
	assert.True(t, card.DailyCeiling.Equal(decimal.RequireFromString("500.25")))
	assert.True(t, card.WeeklyCeiling.IsZero())

	client, err := st.GetClient(ctx, "cli-1")
	require.NoError(t, err)
	assert.True(t, client.Active)

	_, err = st.GetAccount(ctx, "acc-nope")
	assert.True(t, ledger.IsNotFound(err))
	_, err = st.GetCard(ctx, "card-nope")
	assert.True(t, ledger.IsNotFound(err))
	_, err = st.GetClient(ctx, "cli-nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestMutateBalance_GuardsNonNegative(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acc-1", "cli-1", 100)

	require.NoError(t, st.MutateBalance(ctx, "acc-1", decimal.NewFromInt(-40)))

	acc, err := st.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)))

	err = st.MutateBalance(ctx, "acc-1", decimal.NewFromInt(-61))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	acc, err = st.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)), "refused delta must not change the balance")

	err = st.MutateBalance(ctx, "acc-nope", decimal.NewFromInt(1))
	assert.True(t, ledger.IsNotFound(err))
}

func TestMutateBalance_KeepsDecimalPrecision(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acc-1", "cli-1", 0)

	for i := 0; i < 10; i++ {
		require.NoError(t, st.MutateBalance(ctx, "acc-1", decimal.RequireFromString("0.1")))
	}

	acc, err := st.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1)),
		"ten additions of 0.1 must equal exactly 1, got %s", acc.Balance)
}

// =============================================================================
// END TO END WITH THE ENGINE
// =============================================================================

func TestEngineOverSQLite(t *testing.T) {
	// The store serves as both collaborators of the engine; a full
	// transfer plus reversal round trip exercises that wiring.
	st := newStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acc-a", "cli-1", 100)
	seedAccount(t, st, "acc-b", "cli-2", 50)

	eng := ledger.NewEngine(st, st)
	actor := ledger.Actor{UserID: "user-1", ClientGUID: "cli-1"}

	mv, err := eng.RecordTransfer(ctx, actor, "acc-a", "acc-b",
		decimal.NewFromInt(30), "rent")
	require.NoError(t, err)

	accA, err := st.GetAccount(ctx, "acc-a")
	require.NoError(t, err)
	assert.True(t, accA.Balance.Equal(decimal.NewFromInt(70)))

	_, err = eng.ReverseTransfer(ctx, actor, mv.GUID)
	require.NoError(t, err)

	accA, err = st.GetAccount(ctx, "acc-a")
	require.NoError(t, err)
	assert.True(t, accA.Balance.Equal(decimal.NewFromInt(100)))

	accB, err := st.GetAccount(ctx, "acc-b")
	require.NoError(t, err)
	assert.True(t, accB.Balance.Equal(decimal.NewFromInt(50)))
}
