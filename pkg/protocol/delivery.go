package protocol

import (
	"context"
	"time"
)

// Receipt acknowledges a delivered email or notification.
type Receipt struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Recipient string    `json:"recipient,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// EmailMessage is an interpolated email step.
type EmailMessage struct {
	To       []string
	From     string
	Subject  string
	Body     string
	Template string
}

// EmailSender delivers email. Errors wrapped with Transient are retried.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (Receipt, error)
}

// WebhookRequest is an interpolated outbound HTTP call.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// WebhookResponse is the decoded reply of a successful call.
type WebhookResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
}

// WebhookClient performs outbound HTTP calls. Non-2xx responses are errors.
type WebhookClient interface {
	Send(ctx context.Context, req WebhookRequest) (WebhookResponse, error)
}

// Notification is an in-app message for a dashboard user.
type Notification struct {
	UserID      string
	Title       string
	Message     string
	Level       string
	Link        string
	Category    string
	ExecutionID string
	WorkflowID  string
}

// NotificationCreator stores or dispatches in-app notifications.
type NotificationCreator interface {
	Send(ctx context.Context, n Notification) (Receipt, error)
}

// AnalysisRequest is an interpolated AI-analysis step.
type AnalysisRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Context      map[string]any
	MaxTokens    int
	Temperature  float64
}

// AnalysisResult is the AI collaborator's reply.
type AnalysisResult struct {
	Model   string `json:"model"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens,omitempty"`
}

// AIAnalyzer is a potentially slow AI-analysis client.
type AIAnalyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
}

// Collaborators is the set of delivery services injected into the step executor.
// A nil member makes steps of that type fail with a configuration error.
type Collaborators struct {
	Email         EmailSender
	Webhook       WebhookClient
	Notifications NotificationCreator
	AI            AIAnalyzer
	Actions       ActionProvider
}
