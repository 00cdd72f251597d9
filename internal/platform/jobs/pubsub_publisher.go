package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/flss-ops/api/internal/services"
)

// PubSubReconciliationPublisher publishes reconciliation outcomes to a
// Pub/Sub topic for downstream ops tooling.
type PubSubReconciliationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubReconciliationPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubReconciliationPublisher(topic *pubsub.Topic) (*PubSubReconciliationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub reconciliation publisher: topic is required")
	}
	return &PubSubReconciliationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishReconciliationEvent enqueues one outcome message on the configured topic.
func (p *PubSubReconciliationPublisher) PublishReconciliationEvent(ctx context.Context, event services.ReconciliationEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub reconciliation publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reconciliation event: %w", err)
	}

	attrs := map[string]string{
		"draftOrderId": strconv.FormatInt(event.DraftOrderID, 10),
		"corrected":    strconv.FormatBool(event.Corrected),
	}
	if event.Tier != "" {
		attrs["tier"] = event.Tier
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish reconciliation event: %w", err)
	}
	return nil
}
