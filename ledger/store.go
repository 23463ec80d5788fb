/*
store.go - Persistence interface for movements

PURPOSE:
  Defines the interface between the engine and movement storage. The store
  is append-oriented: movements are inserted once and never deleted. The
  only permitted mutations are the IsReversed flag (transfers, once) and
  the next-execution schedule of a recurring direct debit.

LOOKUP PATHS:
  - By guid:    point lookup, O(1) amortized via an index
  - By client:  range lookup with pagination
  - Card history: card-payment sums for limit windows
  - Due debits:  recurring direct debits whose schedule has elapsed

ATOMICITY:
  Insert is all-or-nothing: a movement is either fully visible to
  subsequent lookups or not visible at all. The store performs no business
  validation; the engine enforces every invariant before a write is issued.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory (tests/dev)
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - engine.go: The only writer
  - limits.go: Consumes CardPaymentsSince
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// MOVEMENT STORE - Append-oriented movement persistence
// =============================================================================

// MovementStore persists Movement records. Inserted movements are immutable
// except for the two narrow mutations below.
type MovementStore interface {
	// Insert persists a movement atomically. The guid must be unique;
	// inserting an existing guid is an error.
	Insert(ctx context.Context, mv *Movement) error

	// GetByGUID returns the movement with the given guid.
	// Fails with NotFoundError{movement} if absent.
	GetByGUID(ctx context.Context, guid MovementGUID) (*Movement, error)

	// GetByClient returns the client's movements, newest first, paginated.
	GetByClient(ctx context.Context, client ClientGUID, page PageRequest) (Page, error)

	// List returns all movements, newest first, paginated.
	List(ctx context.Context, page PageRequest) (Page, error)

	// CardPaymentsSince returns all card-payment movements for the card
	// with CreatedAt in [since, until]. Used for limit-window sums.
	CardPaymentsSince(ctx context.Context, card CardRef, since, until time.Time) ([]*Movement, error)

	// MarkReversed flips IsReversed false->true for the given movement.
	// Fails with NotFoundError{movement} if absent and with
	// ErrAlreadyReversed if the flag is already set. The transition is
	// atomic with respect to concurrent reversals.
	MarkReversed(ctx context.Context, guid MovementGUID) error

	// DueDirectDebits returns recurring direct-debit movements whose
	// NextExecution is at or before now.
	DueDirectDebits(ctx context.Context, now time.Time) ([]*Movement, error)

	// AdvanceDirectDebit moves the stored next-execution timestamp of a
	// recurring direct debit forward. The engine guarantees next is
	// strictly after the stored value.
	AdvanceDirectDebit(ctx context.Context, guid MovementGUID, next time.Time) error
}
