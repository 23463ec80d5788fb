/*
publisher.go - Committed-movement event publishing

PURPOSE:
  After a movement commits, interested systems (notifications, analytics)
  are told about it. Publishing is best-effort: a publish failure is
  logged by the implementation and never fails the ledger operation, so
  the event stream is an observer of the ledger, not a participant.

IMPLEMENTATIONS:
  - events/kafka/publisher.go: Kafka topic "movements.committed"
  - NopPublisher: default when no broker is configured

SEE ALSO:
  - engine.go: Publishes after every successful record/reversal
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MovementEvent is the published view of a committed movement.
type MovementEvent struct {
	GUID       MovementGUID    `json:"guid"`
	ClientGUID ClientGUID      `json:"cliente_id"`
	Type       MovementType    `json:"tipo"`
	Amount     decimal.Decimal `json:"amount"`
	Reversed   bool            `json:"is_reversed"`
	At         time.Time       `json:"at"`
}

// Publisher emits committed-movement events.
type Publisher interface {
	PublishMovement(ctx context.Context, ev MovementEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishMovement(context.Context, MovementEvent) error { return nil }

func eventFor(mv *Movement) MovementEvent {
	return MovementEvent{
		GUID:       mv.GUID,
		ClientGUID: mv.ClientGUID,
		Type:       mv.Type,
		Amount:     mv.Amount(),
		Reversed:   mv.IsReversed,
		At:         mv.CreatedAt,
	}
}
