/*
Package kafka publishes committed-movement events to a Kafka topic.

PURPOSE:
  Downstream systems (notifications, fraud analytics, statements) consume
  the "movements.committed" stream. The engine treats publishing as
  best-effort; a broker outage must never fail a ledger operation, so
  failures are logged and swallowed here.

SEE ALSO:
  - ledger/publisher.go: The interface this package implements
*/
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/vivesbank/banking-engine/ledger"
)

const topic = "movements.committed"

// Publisher writes movement events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

var _ ledger.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishMovement emits one event keyed by movement guid. Errors are
// logged, not returned as failures of the ledger operation.
func (p *Publisher) PublishMovement(ctx context.Context, ev ledger.MovementEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.GUID),
		Value: data,
	})
	if err != nil {
		slog.Warn("failed to publish movement event",
			"guid", string(ev.GUID), "error", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }
