/*
engine.go - The movement engine

PURPOSE:
  Applies each movement type against shared account balances: validates
  the payload, serializes on the touched account(s), evaluates card
  limits where applicable, mutates balances through the guarded Directory
  and persists the resulting Movement. Also owns transfer reversal and
  the execution of due recurring direct debits.

ATOMICITY:
  Partial application is never observable. Any failure after a balance
  mutation compensates (applies the inverse delta) before returning, so
  the system is always in a state consistent with "the operation never
  happened". Movements are persisted last, after every balance change
  succeeded.

LOCKING:
  One mutex per account, acquired for the duration of the operation.
  Two-account operations (transfer, reversal) acquire both locks in
  global order; see locks.go.

ERROR CONTRACT:
  Every failure is one of the typed errors in errors.go. Nothing is
  retried internally: limit and balance failures are terminal business
  outcomes, not transient faults.

SEE ALSO:
  - limits.go: Window evaluation for card payments
  - store.go: Movement persistence contract
  - directory.go: Guarded balance mutation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the movement ledger core. Safe for concurrent use.
type Engine struct {
	dir    Directory
	store  MovementStore
	limits LimitEvaluator
	locks  *accountLocks
	pub    Publisher

	// reversalWindow bounds how long after creation a transfer may be
	// reversed. Zero means no bound.
	reversalWindow time.Duration

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher emits committed-movement events to pub.
func WithPublisher(pub Publisher) Option {
	return func(e *Engine) { e.pub = pub }
}

// WithLimitEvaluator overrides the default limit semantics.
func WithLimitEvaluator(le LimitEvaluator) Option {
	return func(e *Engine) { e.limits = le }
}

// WithReversalWindow bounds transfer reversal to d after creation.
func WithReversalWindow(d time.Duration) Option {
	return func(e *Engine) { e.reversalWindow = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a movement engine over the given collaborators.
func NewEngine(dir Directory, store MovementStore, opts ...Option) *Engine {
	e := &Engine{
		dir:    dir,
		store:  store,
		limits: NewLimitEvaluator(),
		locks:  newAccountLocks(),
		pub:    NopPublisher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// CARD PAYMENT
// =============================================================================

// RecordCardPayment charges a card: resolves card -> linked account,
// evaluates the three spending windows, debits the account and persists a
// PagoConTarjeta movement.
func (e *Engine) RecordCardPayment(ctx context.Context, actor Actor, cardRef CardRef, merchant string, amount decimal.Decimal) (*Movement, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	card, err := e.dir.GetCard(ctx, cardRef)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(card.LinkedAccount)
	defer unlock()

	acc, err := e.dir.GetAccount(ctx, card.LinkedAccount)
	if err != nil {
		return nil, err
	}

	at := e.now()
	// One 30-day slice covers all three trailing windows.
	history, err := e.store.CardPaymentsSince(ctx, card.Ref, at.Add(-WindowMonthly.Duration()), at)
	if err != nil {
		return nil, err
	}
	if err := e.limits.Evaluate(card, history, amount, at); err != nil {
		return nil, err
	}

	if err := e.dir.MutateBalance(ctx, acc.Ref, amount.Neg()); err != nil {
		return nil, err
	}

	mv := &Movement{
		GUID:       NewMovementGUID(),
		ClientGUID: acc.OwnerClientGUID,
		Type:       TypeCardPayment,
		CreatedAt:  at,
		CardPayment: &CardPayment{
			Card:     card.Ref,
			Merchant: merchant,
			Amount:   amount,
		},
	}
	if err := e.commit(ctx, mv, acc.Ref, amount.Neg()); err != nil {
		return nil, err
	}
	return mv, nil
}

// =============================================================================
// PAYROLL DEPOSIT
// =============================================================================

// RecordPayroll credits the destination account and persists an
// IngresoDeNomina movement.
func (e *Engine) RecordPayroll(ctx context.Context, actor Actor, dst AccountRef, payerID string, amount decimal.Decimal) (*Movement, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	unlock := e.locks.lock(dst)
	defer unlock()

	acc, err := e.dir.GetAccount(ctx, dst)
	if err != nil {
		return nil, err
	}

	if err := e.dir.MutateBalance(ctx, acc.Ref, amount); err != nil {
		return nil, err
	}

	mv := &Movement{
		GUID:       NewMovementGUID(),
		ClientGUID: acc.OwnerClientGUID,
		Type:       TypePayroll,
		CreatedAt:  e.now(),
		Payroll: &Payroll{
			Destination: acc.Ref,
			PayerID:     payerID,
			Amount:      amount,
		},
	}
	if err := e.commit(ctx, mv, acc.Ref, amount); err != nil {
		return nil, err
	}
	return mv, nil
}

// =============================================================================
// DIRECT DEBIT
// =============================================================================

// RecordDirectDebit debits the source account on behalf of a creditor and
// persists a Domiciliacion movement. Direct debits are not subject to card
// limits, only to the non-negative balance invariant. Recurring debits get
// a next-execution schedule one period ahead; an external runner executes
// occurrences via ExecuteDueDirectDebits.
func (e *Engine) RecordDirectDebit(ctx context.Context, actor Actor, src AccountRef, creditorID string, amount decimal.Decimal, periodicity Periodicity) (*Movement, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	unlock := e.locks.lock(src)
	defer unlock()

	acc, err := e.dir.GetAccount(ctx, src)
	if err != nil {
		return nil, err
	}

	if err := e.dir.MutateBalance(ctx, acc.Ref, amount.Neg()); err != nil {
		return nil, err
	}

	at := e.now()
	dd := &DirectDebit{
		Source:      acc.Ref,
		CreditorID:  creditorID,
		Amount:      amount,
		Periodicity: periodicity,
	}
	if periodicity.Recurring() {
		dd.NextExecution = periodicity.Next(at)
	}
	mv := &Movement{
		GUID:        NewMovementGUID(),
		ClientGUID:  acc.OwnerClientGUID,
		Type:        TypeDirectDebit,
		CreatedAt:   at,
		DirectDebit: dd,
	}
	if err := e.commit(ctx, mv, acc.Ref, amount.Neg()); err != nil {
		return nil, err
	}
	return mv, nil
}

// ExecuteDueDirectDebits runs every recurring direct debit whose schedule
// has elapsed at now: debits the source account, persists an occurrence
// movement and advances the schedule. An occurrence that fails a business
// check (account gone, insufficient funds) is skipped; its schedule still
// advances so a dry account does not wedge the run. Returns the executed
// occurrence movements.
func (e *Engine) ExecuteDueDirectDebits(ctx context.Context, now time.Time) ([]*Movement, error) {
	due, err := e.store.DueDirectDebits(ctx, now)
	if err != nil {
		return nil, err
	}

	var executed []*Movement
	for _, orig := range due {
		mv, err := e.executeOccurrence(ctx, orig)
		if err != nil && !IsClientError(err) {
			return executed, err
		}
		if mv != nil {
			executed = append(executed, mv)
		}
		next := orig.DirectDebit.Periodicity.Next(orig.DirectDebit.NextExecution)
		if err := e.store.AdvanceDirectDebit(ctx, orig.GUID, next); err != nil {
			return executed, err
		}
	}
	return executed, nil
}

func (e *Engine) executeOccurrence(ctx context.Context, orig *Movement) (*Movement, error) {
	dd := orig.DirectDebit

	unlock := e.locks.lock(dd.Source)
	defer unlock()

	acc, err := e.dir.GetAccount(ctx, dd.Source)
	if err != nil {
		return nil, err
	}
	if err := e.dir.MutateBalance(ctx, acc.Ref, dd.Amount.Neg()); err != nil {
		return nil, err
	}

	mv := &Movement{
		GUID:       NewMovementGUID(),
		ClientGUID: acc.OwnerClientGUID,
		Type:       TypeDirectDebit,
		CreatedAt:  e.now(),
		DirectDebit: &DirectDebit{
			Source:      dd.Source,
			CreditorID:  dd.CreditorID,
			Amount:      dd.Amount,
			Periodicity: PeriodOnce,
		},
	}
	if err := e.commit(ctx, mv, acc.Ref, dd.Amount.Neg()); err != nil {
		return nil, err
	}
	return mv, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// RecordTransfer moves amount from src to dst as one atomic unit: the
// debit and credit either both commit or neither does. Both accounts must
// belong to resolvable, active clients.
func (e *Engine) RecordTransfer(ctx context.Context, actor Actor, src, dst AccountRef, amount decimal.Decimal, concept string) (*Movement, error) {
	if src == dst {
		return nil, ErrSameAccountTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	unlock := e.locks.lockPair(src, dst)
	defer unlock()

	srcAcc, err := e.dir.GetAccount(ctx, src)
	if err != nil {
		return nil, err
	}
	dstAcc, err := e.dir.GetAccount(ctx, dst)
	if err != nil {
		return nil, err
	}
	for _, acc := range []Account{srcAcc, dstAcc} {
		client, err := e.dir.GetClient(ctx, acc.OwnerClientGUID)
		if err != nil {
			return nil, err
		}
		if !client.Active {
			return nil, ErrInactiveClient
		}
	}

	if err := e.dir.MutateBalance(ctx, srcAcc.Ref, amount.Neg()); err != nil {
		return nil, err
	}
	if err := e.dir.MutateBalance(ctx, dstAcc.Ref, amount); err != nil {
		// Roll the debit back before surfacing the error: no balance
		// change may survive a failed transfer.
		e.compensate(ctx, srcAcc.Ref, amount)
		return nil, err
	}

	mv := &Movement{
		GUID:       NewMovementGUID(),
		ClientGUID: srcAcc.OwnerClientGUID,
		Type:       TypeTransfer,
		CreatedAt:  e.now(),
		Transfer: &Transfer{
			Source:      srcAcc.Ref,
			Destination: dstAcc.Ref,
			Amount:      amount,
			Concept:     concept,
		},
	}
	if err := e.store.Insert(ctx, mv); err != nil {
		e.compensate(ctx, dstAcc.Ref, amount.Neg())
		e.compensate(ctx, srcAcc.Ref, amount)
		return nil, err
	}
	e.publish(ctx, mv)
	return mv, nil
}

// =============================================================================
// TRANSFER REVERSAL
// =============================================================================

// ReverseTransfer applies the exact inverse of a committed transfer:
// credits the original source, debits the original destination and flips
// IsReversed. The original movement is never deleted or replaced; the
// reversal is a compensating mutation plus a flag, preserving the full
// audit history. Only the owner of the source account (or an admin) may
// reverse.
func (e *Engine) ReverseTransfer(ctx context.Context, actor Actor, guid MovementGUID) (*Movement, error) {
	mv, err := e.store.GetByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	if mv.Type != TypeTransfer || mv.Transfer == nil {
		return nil, ErrNotATransfer
	}
	if mv.IsReversed {
		return nil, ErrAlreadyReversed
	}
	if e.reversalWindow > 0 && e.now().Sub(mv.CreatedAt) > e.reversalWindow {
		return nil, ErrReversalWindowExpired
	}

	tr := mv.Transfer
	srcAcc, err := e.dir.GetAccount(ctx, tr.Source)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(srcAcc) {
		return nil, ErrUnauthorized
	}

	unlock := e.locks.lockPair(tr.Source, tr.Destination)
	defer unlock()

	// The flag may have flipped while we waited on the locks.
	mv, err = e.store.GetByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	if mv.IsReversed {
		return nil, ErrAlreadyReversed
	}

	// Inverse application: destination gives the funds back first, so a
	// spent-down destination surfaces InsufficientFunds with no change.
	if err := e.dir.MutateBalance(ctx, tr.Destination, tr.Amount.Neg()); err != nil {
		return nil, err
	}
	if err := e.dir.MutateBalance(ctx, tr.Source, tr.Amount); err != nil {
		e.compensate(ctx, tr.Destination, tr.Amount)
		return nil, err
	}

	if err := e.store.MarkReversed(ctx, guid); err != nil {
		e.compensate(ctx, tr.Source, tr.Amount.Neg())
		e.compensate(ctx, tr.Destination, tr.Amount)
		return nil, err
	}

	mv.IsReversed = true
	e.publish(ctx, mv)
	return mv, nil
}

// =============================================================================
// READS
// =============================================================================

// GetByGUID returns the movement with the given guid.
func (e *Engine) GetByGUID(ctx context.Context, guid MovementGUID) (*Movement, error) {
	return e.store.GetByGUID(ctx, guid)
}

// GetByClient returns the client's movements, newest first. The client
// must resolve in the directory; a known client with no movements yields
// an empty page.
func (e *Engine) GetByClient(ctx context.Context, client ClientGUID, page PageRequest) (Page, error) {
	if _, err := e.dir.GetClient(ctx, client); err != nil {
		return Page{}, err
	}
	return e.store.GetByClient(ctx, client, page)
}

// List returns all movements, newest first.
func (e *Engine) List(ctx context.Context, page PageRequest) (Page, error) {
	return e.store.List(ctx, page)
}

// =============================================================================
// INTERNALS
// =============================================================================

// commit persists mv; on persistence failure the balance delta that was
// already applied to ref is compensated so no partial state survives.
func (e *Engine) commit(ctx context.Context, mv *Movement, ref AccountRef, applied decimal.Decimal) error {
	if err := e.store.Insert(ctx, mv); err != nil {
		e.compensate(ctx, ref, applied.Neg())
		return err
	}
	e.publish(ctx, mv)
	return nil
}

// compensate undoes a previously applied delta. A compensation of a delta
// we just applied cannot violate the balance guard, so the error is
// ignored.
func (e *Engine) compensate(ctx context.Context, ref AccountRef, delta decimal.Decimal) {
	_ = e.dir.MutateBalance(ctx, ref, delta)
}

// publish emits the committed movement, best-effort.
func (e *Engine) publish(ctx context.Context, mv *Movement) {
	_ = e.pub.PublishMovement(ctx, eventFor(mv))
}
