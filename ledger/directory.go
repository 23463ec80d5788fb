/*
directory.go - Account/Card/Client Directory collaborator interface

PURPOSE:
  The Directory owns account balances, card metadata and client records.
  The engine reads and mutates them exclusively through this interface;
  it never owns their storage. Balance mutation is the single guarded
  write path: MutateBalance must be atomic and must refuse any delta
  that would leave the balance negative.

IMPLEMENTATIONS:
  - directory/memory.go: In-memory directory for tests and dev
  - store/sqlite/sqlite.go: SQLite-backed directory (single UPDATE with
    a balance guard)

SEE ALSO:
  - engine.go: The only consumer of MutateBalance
  - limits.go: Reads card ceilings through GetCard
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIRECTORY ENTITIES - As seen through the collaborator boundary
// =============================================================================

// Account is the engine's read view of a directory account.
type Account struct {
	Ref             AccountRef
	OwnerClientGUID ClientGUID
	Balance         decimal.Decimal
	Active          bool
}

// Card is the engine's read view of a directory card. Ceilings bound the
// cumulative card-payment amount inside each trailing window; see limits.go
// for the zero-ceiling semantics.
type Card struct {
	Ref           CardRef
	LinkedAccount AccountRef
	DailyCeiling  decimal.Decimal
	WeeklyCeiling decimal.Decimal
	MonthlyCeiling decimal.Decimal
}

// Client is the engine's read view of a directory client.
type Client struct {
	GUID   ClientGUID
	Active bool
}

// =============================================================================
// DIRECTORY - Collaborator interface
// =============================================================================

// Directory resolves account/card/client references and applies guarded
// balance mutations. All business validation happens in the engine; the
// directory enforces exactly one invariant of its own: a balance never
// goes negative.
type Directory interface {
	// GetAccount resolves an account reference.
	// Fails with NotFoundError{account} if absent.
	GetAccount(ctx context.Context, ref AccountRef) (Account, error)

	// GetCard resolves a card reference.
	// Fails with NotFoundError{card} if absent.
	GetCard(ctx context.Context, ref CardRef) (Card, error)

	// GetClient resolves a client guid.
	// Fails with NotFoundError{client} if absent.
	GetClient(ctx context.Context, guid ClientGUID) (Client, error)

	// MutateBalance atomically applies delta (positive = credit,
	// negative = debit) to the account balance. Fails with
	// InsufficientFundsError if the resulting balance would be negative,
	// leaving the balance untouched. Fails with NotFoundError{account}
	// if the account does not exist.
	MutateBalance(ctx context.Context, ref AccountRef, delta decimal.Decimal) error
}
