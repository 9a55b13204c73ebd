package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/bizflow/pkg/events"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/google/uuid"
)

// ErrEventTypeRequired is returned for events forwarded without a type.
var ErrEventTypeRequired = errors.New("event type is required")

// Forwarder hands ingested business events to a worker over the bus instead of
// running their triggers in the calling process.
type Forwarder struct {
	publisher EventPublisher
}

func NewForwarder(publisher EventPublisher) *Forwarder {
	return &Forwarder{publisher: publisher}
}

// IngestEvent publishes event as webhook.event.received keyed by its event id.
func (f *Forwarder) IngestEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event == nil || event.EventType == "" {
		return ErrEventTypeRequired
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	err := f.publisher.Publish(ctx, event.ID, events.WebhookEventReceived{
		BaseEvent: events.NewBaseEvent(events.WebhookEventReceivedEvent, ""),
		Event:     *event,
	})
	if err != nil {
		return fmt.Errorf("failed to forward %s event: %w", event.EventType, err)
	}

	return nil
}
