/*
locks.go - Per-account mutual exclusion

PURPOSE:
  Account balances are shared mutable state hit by concurrent requests.
  Every balance-mutating operation on an account must be serialized with
  every other operation touching that account, so concurrent debits and
  credits never interleave into a lost update or a negative-balance race.

DEADLOCK AVOIDANCE:
  Transfers and reversals touch two accounts. Locks are always acquired
  in lexicographic account-ref order, so two concurrent transfers over
  the same pair in opposite directions cannot deadlock.

CONTENTION:
  Lock contention is never a user-visible error. Waiters block; there is
  no timeout at this level (request deadlines belong to the caller).
*/
package ledger

import "sync"

// accountLocks hands out one mutex per account ref, lazily.
type accountLocks struct {
	mu    sync.Mutex
	locks map[AccountRef]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[AccountRef]*sync.Mutex)}
}

func (al *accountLocks) lockFor(ref AccountRef) *sync.Mutex {
	al.mu.Lock()
	defer al.mu.Unlock()
	l, ok := al.locks[ref]
	if !ok {
		l = &sync.Mutex{}
		al.locks[ref] = l
	}
	return l
}

// lock serializes access to a single account. Returns the unlock func.
func (al *accountLocks) lock(ref AccountRef) func() {
	l := al.lockFor(ref)
	l.Lock()
	return l.Unlock
}

// lockPair serializes access to two accounts, acquiring in global
// (lexicographic) order. Returns the unlock func, which releases in
// reverse order.
func (al *accountLocks) lockPair(a, b AccountRef) func() {
	if a == b {
		return al.lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	fl, sl := al.lockFor(first), al.lockFor(second)
	fl.Lock()
	sl.Lock()
	return func() {
		sl.Unlock()
		fl.Unlock()
	}
}
