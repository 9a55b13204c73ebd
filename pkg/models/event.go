package models

import "time"

// WebhookEvent is an external business event ingested by the engine, such as an
// invoice being created in an accounting system.
type WebhookEvent struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId"`
	EventType  string         `json:"eventType"  validate:"required"`
	EntityID   string         `json:"entityId,omitempty"`
	EntityType string         `json:"entityType,omitempty"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"receivedAt"`
}
