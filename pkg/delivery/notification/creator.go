// Package notification turns notification steps into notification.created events.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/events"
	"github.com/dukex/bizflow/pkg/protocol"
)

// Creator implements protocol.NotificationCreator. Without a publisher it only
// logs, which keeps notification steps usable in single-process setups.
type Creator struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewCreator(publisher eventbus.EventPublisher, logger *slog.Logger) *Creator {
	return &Creator{publisher: publisher, logger: logger.With("module", "notification_creator")}
}

func (c *Creator) Send(ctx context.Context, n protocol.Notification) (protocol.Receipt, error) {
	event := events.NotificationCreated{
		BaseEvent:   events.NewBaseEvent(events.NotificationCreatedEvent, n.WorkflowID),
		ExecutionID: n.ExecutionID,
		UserID:      n.UserID,
		Title:       n.Title,
		Message:     n.Message,
		Level:       n.Level,
		Link:        n.Link,
		Category:    n.Category,
	}
	event.NotificationID = event.ID

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, n.UserID, event); err != nil {
			return protocol.Receipt{}, protocol.Transientf("publishing notification: %w", err)
		}
	}

	c.logger.InfoContext(ctx, "notification created",
		"notification_id", event.NotificationID,
		"user_id", n.UserID,
		"level", n.Level,
		"execution_id", n.ExecutionID,
	)

	return protocol.Receipt{
		ID:        event.NotificationID,
		Status:    "created",
		Recipient: n.UserID,
		SentAt:    time.Now().UTC(),
	}, nil
}
