package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/events"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
)

// EventIngester runs the triggers of an ingested business event.
type EventIngester interface {
	IngestEvent(ctx context.Context, event *models.WebhookEvent) error
}

// Scheduler fires cron triggers between Start and Stop.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type WorkerManager struct {
	id        string
	logger    *slog.Logger
	engine    EventIngester
	eventBus  eventbus.EventBus
	scheduler Scheduler
}

// NewWorkerManager builds a worker. eventBus and scheduler are each optional, but
// a worker with neither has nothing to do.
func NewWorkerManager(
	id string,
	engine EventIngester,
	eventBus eventbus.EventBus,
	scheduler Scheduler,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:        id,
		logger:    logger.With("module", "bizflow-worker", "worker_id", id),
		engine:    engine,
		eventBus:  eventBus,
		scheduler: scheduler,
	}
}

// Start subscribes to ingested events and starts the scheduler. It returns once
// both are running.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if w.eventBus == nil && w.scheduler == nil {
		return errors.New("worker needs an event bus or the scheduler")
	}

	if w.eventBus != nil {
		if err := w.eventBus.Handle(events.WebhookEventReceivedEvent, w.handleWebhookEventReceived); err != nil {
			return err
		}

		if err := w.eventBus.Subscribe(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

			return err
		}
	}

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

func (w *WorkerManager) Stop(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Shutting down worker...")

	if w.scheduler == nil {
		return nil
	}

	return w.scheduler.Stop(ctx)
}

// handleWebhookEventReceived ingests a forwarded event. Malformed events are
// dropped; only failures worth redelivering are returned.
func (w *WorkerManager) handleWebhookEventReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.WebhookEventReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WebhookEventReceived")

		return nil
	}

	logger := w.logger.With(
		"event_id", received.Event.ID,
		"event_type", received.Event.EventType,
		"entity_id", received.Event.EntityID,
	)
	logger.InfoContext(ctx, "Processing webhook event")

	err := w.engine.IngestEvent(ctx, &received.Event)
	if errors.Is(err, protocol.ErrValidation) {
		logger.WarnContext(ctx, "Dropping invalid webhook event", "error", err)

		return nil
	}

	return err
}
