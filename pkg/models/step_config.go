package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StepConfig is the typed configuration of one step variant.
type StepConfig interface {
	StepType() StepType
	Validate() error
}

// EmailConfig configures an email step.
type EmailConfig struct {
	To       string `json:"to"`
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body,omitempty"`
	From     string `json:"from,omitempty"`
	Template string `json:"template,omitempty"`
}

func (EmailConfig) StepType() StepType { return StepTypeEmail }

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.To) == "" {
		return errors.New("email recipient 'to' is required")
	}

	return nil
}

// WebhookConfig configures an outbound HTTP call.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

func (WebhookConfig) StepType() StepType { return StepTypeWebhook }

func (c WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("webhook 'url' is required")
	}

	switch strings.ToUpper(c.MethodOrDefault()) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
		return nil
	default:
		return fmt.Errorf("unsupported webhook method %q", c.Method)
	}
}

// MethodOrDefault returns the configured HTTP method, POST when empty.
func (c WebhookConfig) MethodOrDefault() string {
	if c.Method == "" {
		return http.MethodPost
	}

	return strings.ToUpper(c.Method)
}

// DelayConfig pauses the run. Duration is either a number of seconds or a string
// such as "5 minutes" or "1h30m".
type DelayConfig struct {
	Duration any `json:"duration"`
}

func (DelayConfig) StepType() StepType { return StepTypeDelay }

func (c DelayConfig) Validate() error {
	if c.Duration == nil {
		return errors.New("delay 'duration' is required")
	}

	return nil
}

// NotificationConfig creates an in-app notification.
type NotificationConfig struct {
	UserID   string `json:"userId,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
	Level    string `json:"level,omitempty"`
	Link     string `json:"link,omitempty"`
	Category string `json:"category,omitempty"`
}

func (NotificationConfig) StepType() StepType { return StepTypeNotification }

func (c NotificationConfig) Validate() error {
	if strings.TrimSpace(c.Message) == "" {
		return errors.New("notification 'message' is required")
	}

	return nil
}

// AIConfig configures an AI analysis step.
type AIConfig struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model,omitempty"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

func (AIConfig) StepType() StepType { return StepTypeGPT }

func (c AIConfig) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return errors.New("gpt 'prompt' is required")
	}

	return nil
}

// ActionConfig selects a registered action by its actionType.
type ActionConfig struct {
	ActionType string         `json:"actionType"`
	Config     map[string]any `json:"config,omitempty"`
}

func (ActionConfig) StepType() StepType { return StepTypeAction }

func (c ActionConfig) Validate() error {
	if strings.TrimSpace(c.ActionType) == "" {
		return errors.New("action 'actionType' is required")
	}

	return nil
}

// ConditionConfig optionally carries an expression evaluated in addition to the
// step's operator conditions.
type ConditionConfig struct {
	Expression string `json:"expression,omitempty"`
}

func (ConditionConfig) StepType() StepType { return StepTypeCondition }

func (ConditionConfig) Validate() error { return nil }

// DecodeStepConfig converts a raw configuration map into the typed variant for stepType.
func DecodeStepConfig(stepType StepType, raw map[string]any) (StepConfig, error) {
	var target StepConfig

	switch stepType {
	case StepTypeEmail:
		target = &EmailConfig{}
	case StepTypeWebhook:
		target = &WebhookConfig{}
	case StepTypeDelay:
		target = &DelayConfig{}
	case StepTypeNotification:
		target = &NotificationConfig{}
	case StepTypeGPT:
		target = &AIConfig{}
	case StepTypeAction:
		target = &ActionConfig{}
	case StepTypeCondition:
		target = &ConditionConfig{}
	default:
		return nil, fmt.Errorf("%w: unknown step type %q", ErrInvalidDefinition, stepType)
	}

	if len(raw) > 0 {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %s configuration: %w", ErrInvalidDefinition, stepType, err)
		}

		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("%w: decoding %s configuration: %w", ErrInvalidDefinition, stepType, err)
		}
	}

	return deref(target), nil
}

func deref(config StepConfig) StepConfig {
	switch c := config.(type) {
	case *EmailConfig:
		return *c
	case *WebhookConfig:
		return *c
	case *DelayConfig:
		return *c
	case *NotificationConfig:
		return *c
	case *AIConfig:
		return *c
	case *ActionConfig:
		return *c
	case *ConditionConfig:
		return *c
	default:
		return config
	}
}
