/*
Package directory provides an in-memory Account/Card/Client Directory.

PURPOSE:
  The Directory collaborator owns account balances, card metadata and
  client records. This implementation keeps them in memory with a single
  RWMutex; MutateBalance applies its guard and the write under one lock,
  so a delta that would drive a balance negative is refused atomically
  with no partial state.

  The SQLite-backed directory in store/sqlite has the same semantics with
  a guarded UPDATE instead of a mutex.

USAGE:
  dir := directory.NewMemory()
  dir.PutClient(ledger.Client{GUID: "cli-1", Active: true})
  dir.PutAccount(ledger.Account{Ref: "acc-1", OwnerClientGUID: "cli-1",
      Balance: decimal.NewFromInt(100), Active: true})

SEE ALSO:
  - ledger/directory.go: The interface this package implements
*/
package directory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vivesbank/banking-engine/ledger"
)

// Memory is an in-memory ledger.Directory.
type Memory struct {
	mu       sync.RWMutex
	accounts map[ledger.AccountRef]ledger.Account
	cards    map[ledger.CardRef]ledger.Card
	clients  map[ledger.ClientGUID]ledger.Client
}

var _ ledger.Directory = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.AccountRef]ledger.Account),
		cards:    make(map[ledger.CardRef]ledger.Card),
		clients:  make(map[ledger.ClientGUID]ledger.Client),
	}
}

// =============================================================================
// SEEDING - Used by tests, dev fixtures and the CRUD layer
// =============================================================================

func (m *Memory) PutAccount(acc ledger.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.Ref] = acc
}

func (m *Memory) PutCard(card ledger.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.Ref] = card
}

func (m *Memory) PutClient(client ledger.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.GUID] = client
}

// =============================================================================
// DIRECTORY INTERFACE
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, ref ledger.AccountRef) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return ledger.Account{}, ledger.NewAccountNotFound(ref)
	}
	return acc, nil
}

func (m *Memory) GetCard(_ context.Context, ref ledger.CardRef) (ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[ref]
	if !ok {
		return ledger.Card{}, ledger.NewCardNotFound(ref)
	}
	return card, nil
}

func (m *Memory) GetClient(_ context.Context, guid ledger.ClientGUID) (ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[guid]
	if !ok {
		return ledger.Client{}, ledger.NewClientNotFound(guid)
	}
	return client, nil
}

// MutateBalance applies delta under the write lock. The guard and the
// write are one critical section: either the new balance is non-negative
// and stored, or nothing changes.
func (m *Memory) MutateBalance(_ context.Context, ref ledger.AccountRef, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return ledger.NewAccountNotFound(ref)
	}
	next := acc.Balance.Add(delta)
	if next.IsNegative() {
		return &ledger.InsufficientFundsError{
			Account:   ref,
			Available: acc.Balance,
			Requested: delta.Neg(),
		}
	}
	acc.Balance = next
	m.accounts[ref] = acc
	return nil
}
