/*
Package ledger provides the core movement-processing engine.

PURPOSE:
  This package contains the domain types and algorithms for recording
  balance-affecting events against client accounts: card payments, payroll
  deposits, direct debits and peer transfers. Every such event is persisted
  as an immutable Movement; balances are mutated only through the guarded
  Directory collaborator, and a specific transfer can be reversed exactly
  once while preserving the full audit history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Movement: An immutable record of a single balance-affecting event
  - MovementType: Which of the four operation kinds a movement carries
  - Payloads: Exactly one type-specific payload per movement
  - Actor: The authenticated user/client context performing an operation
  - Periodicity: One-off vs recurring schedule for direct debits

DESIGN PRINCIPLES:
  1. Immutability: Movements are never edited; a transfer reversal flips
     IsReversed once and compensates balances, it never rewrites history
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Stable identity: The guid is the only identifier that crosses the
     boundary; storage-internal keys never leak
  4. Auditability: Every movement carries its actor and creation time

USAGE:
  mv, err := eng.RecordTransfer(ctx, actor, srcRef, dstRef,
      decimal.NewFromInt(30), "rent")

SEE ALSO:
  - engine.go: The Ledger engine applying each movement type
  - limits.go: Card spending-limit evaluation
  - store.go: MovementStore persistence interface
  - directory.go: Account/Card/Client Directory collaborator
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MovementGUID string
type AccountRef string
type CardRef string
type ClientGUID string

// NewMovementGUID mints the externally stable identifier for a movement.
func NewMovementGUID() MovementGUID {
	return MovementGUID(uuid.NewString())
}

// =============================================================================
// MOVEMENT TYPES
// =============================================================================

type MovementType string

const (
	TypeCardPayment MovementType = "PagoConTarjeta"
	TypePayroll     MovementType = "IngresoDeNomina"
	TypeDirectDebit MovementType = "Domiciliacion"
	TypeTransfer    MovementType = "Transferencia"
)

// =============================================================================
// MOVEMENT - Immutable record of a balance-affecting event
// =============================================================================

// Movement is the atomic ledger record. Exactly one of the payload pointers
// matching Type is non-nil. Once committed it is read-only except for
// IsReversed, which transitions false->true at most once and only for
// TypeTransfer movements.
type Movement struct {
	GUID       MovementGUID
	ClientGUID ClientGUID
	Type       MovementType
	CreatedAt  time.Time
	IsReversed bool

	CardPayment *CardPayment
	Payroll     *Payroll
	DirectDebit *DirectDebit
	Transfer    *Transfer
}

// CardPayment debits the account linked to a card, subject to spending
// ceilings.
type CardPayment struct {
	Card     CardRef
	Merchant string
	Amount   decimal.Decimal
}

// Payroll credits an account from an external payer.
type Payroll struct {
	Destination AccountRef
	PayerID     string
	Amount      decimal.Decimal
}

// DirectDebit debits an account on behalf of a creditor, optionally on a
// recurring schedule. NextExecution is set only for recurring debits and
// advances monotonically each time an occurrence is executed.
type DirectDebit struct {
	Source        AccountRef
	CreditorID    string
	Amount        decimal.Decimal
	Periodicity   Periodicity
	NextExecution time.Time
}

// Transfer moves funds between two accounts. The only reversible type.
type Transfer struct {
	Source      AccountRef
	Destination AccountRef
	Amount      decimal.Decimal
	Concept     string
}

// Amount returns the monetary amount of whichever payload the movement
// carries.
func (m *Movement) Amount() decimal.Decimal {
	switch m.Type {
	case TypeCardPayment:
		return m.CardPayment.Amount
	case TypePayroll:
		return m.Payroll.Amount
	case TypeDirectDebit:
		return m.DirectDebit.Amount
	case TypeTransfer:
		return m.Transfer.Amount
	}
	return decimal.Zero
}

// =============================================================================
// PERIODICITY - Direct-debit schedule
// =============================================================================

type Periodicity string

const (
	PeriodOnce    Periodicity = "once"
	PeriodDaily   Periodicity = "daily"
	PeriodWeekly  Periodicity = "weekly"
	PeriodMonthly Periodicity = "monthly"
	PeriodAnnual  Periodicity = "annual"
)

// Recurring reports whether the periodicity requires a next-execution
// schedule.
func (p Periodicity) Recurring() bool { return p != PeriodOnce && p != "" }

// Next advances a schedule point by one period. For one-off debits it
// returns from unchanged.
func (p Periodicity) Next(from time.Time) time.Time {
	switch p {
	case PeriodDaily:
		return from.AddDate(0, 0, 1)
	case PeriodWeekly:
		return from.AddDate(0, 0, 7)
	case PeriodMonthly:
		return from.AddDate(0, 1, 0)
	case PeriodAnnual:
		return from.AddDate(1, 0, 0)
	}
	return from
}

// =============================================================================
// ACTOR - Authenticated caller context
// =============================================================================

// Actor identifies who is performing an operation. Authentication itself is
// owned by the calling layer; the engine only uses the resolved client
// identity for ownership checks and movement attribution.
type Actor struct {
	UserID     string
	ClientGUID ClientGUID
	IsAdmin    bool
}

// Owns reports whether the actor owns the given account.
func (a Actor) Owns(acc Account) bool {
	return a.IsAdmin || (a.ClientGUID != "" && a.ClientGUID == acc.OwnerClientGUID)
}

// =============================================================================
// PAGINATION
// =============================================================================

// PageRequest selects a zero-based page of results.
type PageRequest struct {
	Page int
	Size int
}

const defaultPageSize = 20

// Normalize clamps a request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	return p
}

// Offset returns the index of the first element of the page.
func (p PageRequest) Offset() int { return p.Page * p.Size }

// Page is one page of movements plus paging metadata.
type Page struct {
	Content    []*Movement
	Page       int
	Size       int
	TotalItems int
}
