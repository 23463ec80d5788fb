// Package store provides MovementStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vivesbank/banking-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	byGUID   map[ledger.MovementGUID]*ledger.Movement
	byClient map[ledger.ClientGUID][]ledger.MovementGUID
	order    []ledger.MovementGUID // insertion order, oldest first
}

func NewMemory() *Memory {
	return &Memory{
		byGUID:   make(map[ledger.MovementGUID]*ledger.Movement),
		byClient: make(map[ledger.ClientGUID][]ledger.MovementGUID),
	}
}

// Insert adds a movement. The stored copy is private so later caller
// mutations cannot leak into the store.
func (m *Memory) Insert(_ context.Context, mv *ledger.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byGUID[mv.GUID]; exists {
		return ledger.ErrDuplicateMovement
	}
	cp := clone(mv)
	m.byGUID[cp.GUID] = cp
	m.byClient[cp.ClientGUID] = append(m.byClient[cp.ClientGUID], cp.GUID)
	m.order = append(m.order, cp.GUID)
	return nil
}

func (m *Memory) GetByGUID(_ context.Context, guid ledger.MovementGUID) (*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mv, ok := m.byGUID[guid]
	if !ok {
		return nil, ledger.NewMovementNotFound(guid)
	}
	return clone(mv), nil
}

func (m *Memory) GetByClient(_ context.Context, client ledger.ClientGUID, page ledger.PageRequest) (ledger.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paginate(m.byClient[client], page), nil
}

func (m *Memory) List(_ context.Context, page ledger.PageRequest) (ledger.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paginate(m.order, page), nil
}

func (m *Memory) CardPaymentsSince(_ context.Context, card ledger.CardRef, since, until time.Time) ([]*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ledger.Movement
	for _, guid := range m.order {
		mv := m.byGUID[guid]
		if mv.Type != ledger.TypeCardPayment || mv.CardPayment.Card != card {
			continue
		}
		if mv.CreatedAt.Before(since) || mv.CreatedAt.After(until) {
			continue
		}
		result = append(result, clone(mv))
	}
	return result, nil
}

func (m *Memory) MarkReversed(_ context.Context, guid ledger.MovementGUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mv, ok := m.byGUID[guid]
	if !ok {
		return ledger.NewMovementNotFound(guid)
	}
	if mv.IsReversed {
		return ledger.ErrAlreadyReversed
	}
	mv.IsReversed = true
	return nil
}

func (m *Memory) DueDirectDebits(_ context.Context, now time.Time) ([]*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*ledger.Movement
	for _, guid := range m.order {
		mv := m.byGUID[guid]
		if mv.Type != ledger.TypeDirectDebit {
			continue
		}
		dd := mv.DirectDebit
		if !dd.Periodicity.Recurring() || dd.NextExecution.After(now) {
			continue
		}
		due = append(due, clone(mv))
	}
	return due, nil
}

func (m *Memory) AdvanceDirectDebit(_ context.Context, guid ledger.MovementGUID, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mv, ok := m.byGUID[guid]
	if !ok {
		return ledger.NewMovementNotFound(guid)
	}
	mv.DirectDebit.NextExecution = next
	return nil
}

// paginate returns the requested page of guids as movements, newest first.
func (m *Memory) paginate(guids []ledger.MovementGUID, page ledger.PageRequest) ledger.Page {
	page = page.Normalize()

	// Newest first without disturbing the stored order.
	newest := make([]ledger.MovementGUID, len(guids))
	copy(newest, guids)
	sort.SliceStable(newest, func(i, j int) bool {
		return m.byGUID[newest[i]].CreatedAt.After(m.byGUID[newest[j]].CreatedAt)
	})

	start := page.Offset()
	if start > len(newest) {
		start = len(newest)
	}
	end := start + page.Size
	if end > len(newest) {
		end = len(newest)
	}

	content := make([]*ledger.Movement, 0, end-start)
	for _, guid := range newest[start:end] {
		content = append(content, clone(m.byGUID[guid]))
	}
	return ledger.Page{
		Content:    content,
		Page:       page.Page,
		Size:       page.Size,
		TotalItems: len(newest),
	}
}

// clone deep-copies a movement so internal state never escapes.
func clone(mv *ledger.Movement) *ledger.Movement {
	cp := *mv
	if mv.CardPayment != nil {
		p := *mv.CardPayment
		cp.CardPayment = &p
	}
	if mv.Payroll != nil {
		p := *mv.Payroll
		cp.Payroll = &p
	}
	if mv.DirectDebit != nil {
		p := *mv.DirectDebit
		cp.DirectDebit = &p
	}
	if mv.Transfer != nil {
		p := *mv.Transfer
		cp.Transfer = &p
	}
	return &cp
}
