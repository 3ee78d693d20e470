// internal/events/nats.go
package events

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
)

// Publisher sends a JSON payload to a subject. *messaging.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// BrokerSubscriber forwards completion events to a message broker for consumers
// outside this process.
type BrokerSubscriber struct {
	publisher Publisher
	subject   string
}

func NewBrokerSubscriber(publisher Publisher, subject string) *BrokerSubscriber {
	return &BrokerSubscriber{publisher: publisher, subject: subject}
}

func (b *BrokerSubscriber) Name() string { return "broker:" + b.subject }

func (b *BrokerSubscriber) Handle(ctx context.Context, evt domain.TransactionCompleted) error {
	if err := b.publisher.Publish(ctx, b.subject, evt); err != nil {
		return fmt.Errorf("publish %s to %s: %w", evt.Reference, b.subject, err)
	}
	return nil
}
