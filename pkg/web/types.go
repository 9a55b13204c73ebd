// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/bizflow/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WorkflowRequest is the body of POST /workflows and PUT /workflows/:id. An update
// replaces the stored definition as a whole.
type WorkflowRequest struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	IsActive    *bool          `json:"isActive,omitempty"`
	Steps       []models.Step  `json:"steps"`
	Variables   map[string]any `json:"variables,omitempty"`
	Owner       string         `json:"owner"                 validate:"required"`
}

// ToWorkflow converts the request into a workflow. Workflows are active unless
// isActive is explicitly false.
func (r WorkflowRequest) ToWorkflow() *models.Workflow {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	steps := r.Steps
	if steps == nil {
		steps = []models.Step{}
	}

	return &models.Workflow{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsActive:    active,
		Steps:       steps,
		Variables:   r.Variables,
		Owner:       r.Owner,
	}
}

// CreateTriggerRequest is the body of POST /triggers.
type CreateTriggerRequest struct {
	ID            string                      `json:"id,omitempty"`
	WorkflowID    string                      `json:"workflowId"              validate:"required"`
	EventType     string                      `json:"eventType"               validate:"required"`
	IsActive      *bool                       `json:"isActive,omitempty"`
	Conditions    map[string]models.Condition `json:"conditions,omitempty"`
	PayloadSchema map[string]any              `json:"payloadSchema,omitempty"`
	Schedule      string                      `json:"schedule,omitempty"`
}

func (r CreateTriggerRequest) ToTrigger() *models.Trigger {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.Trigger{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		EventType:     r.EventType,
		IsActive:      active,
		Conditions:    r.Conditions,
		PayloadSchema: r.PayloadSchema,
		Schedule:      r.Schedule,
	}
}

// ExecuteWorkflowRequest is the body of POST /workflows/:id/execute and /test.
type ExecuteWorkflowRequest struct {
	Input   map[string]any `json:"input"`
	ActorID string         `json:"actorId"`
}

// CreateEventRequest is the body of POST /events.
type CreateEventRequest struct {
	ActorID    string         `json:"actorId"`
	EventType  string         `json:"eventType"  validate:"required"`
	EntityID   string         `json:"entityId"`
	EntityType string         `json:"entityType"`
	Payload    map[string]any `json:"payload"`
}

func (r CreateEventRequest) ToEvent() *models.WebhookEvent {
	return &models.WebhookEvent{
		ActorID:    r.ActorID,
		EventType:  r.EventType,
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		Payload:    r.Payload,
	}
}

// EventAcceptedResponse is returned once an event has been handed to the engine.
type EventAcceptedResponse struct {
	ID        string `json:"id"`
	EventType string `json:"eventType"`
}
