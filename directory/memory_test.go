package directory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivesbank/banking-engine/directory"
	"github.com/vivesbank/banking-engine/ledger"
)

func seeded() *directory.Memory {
	m := directory.NewMemory()
	m.PutClient(ledger.Client{GUID: "cli-1", Active: true})
	m.PutAccount(ledger.Account{
		Ref:             "acc-1",
		OwnerClientGUID: "cli-1",
		Balance:         decimal.NewFromInt(100),
		Active:          true,
	})
	m.PutCard(ledger.Card{Ref: "card-1", LinkedAccount: "acc-1"})
	return m
}

func TestLookups(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	acc, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.ClientGUID("cli-1"), acc.OwnerClientGUID)

	card, err := m.GetCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountRef("acc-1"), card.LinkedAccount)

	client, err := m.GetClient(ctx, "cli-1")
	require.NoError(t, err)
	assert.True(t, client.Active)

	_, err = m.GetAccount(ctx, "acc-nope")
	assert.True(t, ledger.IsNotFound(err))
	_, err = m.GetCard(ctx, "card-nope")
	assert.True(t, ledger.IsNotFound(err))
	_, err = m.GetClient(ctx, "cli-nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestMutateBalance(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	require.NoError(t, m.MutateBalance(ctx, "acc-1", decimal.NewFromInt(-40)))

	acc, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)))

	err = m.MutateBalance(ctx, "acc-1", decimal.NewFromInt(-61))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	acc, err = m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)))

	err = m.MutateBalance(ctx, "acc-nope", decimal.NewFromInt(1))
	assert.True(t, ledger.IsNotFound(err))
}
