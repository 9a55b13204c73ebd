// Package events defines the lifecycle notifications published while workflows run.
package events

import (
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "bizflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"

	NotificationCreatedEvent  EventType = "notification.created"
	WebhookEventReceivedEvent EventType = "webhook.event.received"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type WorkflowExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	ActorID     string         `json:"actor_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	DryRun      bool           `json:"dry_run,omitempty"`
}

func (w WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	DryRun      bool           `json:"dry_run,omitempty"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

// NotificationCreated carries an in-app notification to whatever renders it.
type NotificationCreated struct {
	BaseEvent

	NotificationID string `json:"notification_id"`
	ExecutionID    string `json:"execution_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Message        string `json:"message"`
	Level          string `json:"level"`
	Link           string `json:"link,omitempty"`
	Category       string `json:"category,omitempty"`
}

func (n NotificationCreated) GetType() EventType {
	return NotificationCreatedEvent
}

// WebhookEventReceived asks a worker to ingest an external business event.
type WebhookEventReceived struct {
	BaseEvent

	Event models.WebhookEvent `json:"event"`
}

func (w WebhookEventReceived) GetType() EventType {
	return WebhookEventReceivedEvent
}
