/*
errors.go - Centralized error types for the movement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on error kind with errors.Is / errors.As, never on
  message text.

ERROR CATEGORIES:
  1. Not-found errors   - Account/Card/Client/Movement references that
                          do not resolve
  2. Invariant errors   - Negative balance, same-account transfer,
                          non-positive amount
  3. Business rejections - Spending limits, reversal eligibility,
                          ownership

  None of these are transient: the engine never retries internally.

USAGE:
  Callers wrap or classify:

    if errors.Is(err, ledger.ErrInsufficientFunds) { ... }

    var le *ledger.LimitExceededError
    if errors.As(err, &le) { reject(le.Window) }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the root of every missing-reference failure.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a debit would drive an account
	// balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded is returned when a card payment would breach a
	// daily/weekly/monthly spending ceiling.
	ErrLimitExceeded = errors.New("card limit exceeded")

	// ErrSameAccountTransfer is returned when source and destination of a
	// transfer are the same account.
	ErrSameAccountTransfer = errors.New("transfer source and destination are the same account")

	// ErrNonPositiveAmount is returned when a movement amount is zero or
	// negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrAlreadyReversed is returned when reversing a transfer whose
	// IsReversed flag is already set.
	ErrAlreadyReversed = errors.New("transfer already reversed")

	// ErrNotATransfer is returned when a reversal targets a movement that is
	// not a Transferencia.
	ErrNotATransfer = errors.New("movement is not a transfer")

	// ErrUnauthorized is returned when the actor does not own the source
	// account of the transfer being reversed.
	ErrUnauthorized = errors.New("actor does not own the source account")

	// ErrReversalWindowExpired is returned when a reversal arrives after the
	// configured reversal window has elapsed.
	ErrReversalWindowExpired = errors.New("reversal window expired")

	// ErrInactiveClient is returned when an account resolves to a client
	// that is no longer active.
	ErrInactiveClient = errors.New("account owner is not an active client")

	// ErrDuplicateMovement is returned by stores when inserting a guid
	// that already exists. The engine mints guids, so hitting this
	// indicates a retry of an already-committed insert.
	ErrDuplicateMovement = errors.New("movement guid already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity reference failed to resolve.
type NotFoundError struct {
	Entity string // "account", "card", "client", "movement"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Typed constructors keep the entity names consistent across the engine
// and the storage layers.
func NewAccountNotFound(ref AccountRef) *NotFoundError {
	return &NotFoundError{Entity: "account", ID: string(ref)}
}
func NewCardNotFound(ref CardRef) *NotFoundError {
	return &NotFoundError{Entity: "card", ID: string(ref)}
}
func NewClientNotFound(guid ClientGUID) *NotFoundError {
	return &NotFoundError{Entity: "client", ID: string(guid)}
}
func NewMovementNotFound(guid MovementGUID) *NotFoundError {
	return &NotFoundError{Entity: "movement", ID: string(guid)}
}

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	Account   AccountRef
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %s, requested %s",
		e.Account, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// LimitExceededError identifies which spending window was breached.
type LimitExceededError struct {
	Card    CardRef
	Window  LimitWindow
	Spent   decimal.Decimal // sum inside the window, before the candidate
	Amount  decimal.Decimal // the candidate charge
	Ceiling decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded on card %s: spent %s + %s > ceiling %s",
		e.Window, e.Card, e.Spent, e.Amount, e.Ceiling)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvariantViolation returns true for failures caused by invalid input
// rather than missing references or business rejections.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrSameAccountTransfer) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsClientError returns true if the failure is attributable to the request
// and will not succeed on retry.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		IsInvariantViolation(err) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrNotATransfer) ||
		errors.Is(err, ErrReversalWindowExpired) ||
		errors.Is(err, ErrInactiveClient)
}
