package models

import (
	"fmt"
	"time"
)

// StepType identifies the handler a step is dispatched to.
type StepType string

const (
	StepTypeAction       StepType = "action"
	StepTypeCondition    StepType = "condition"
	StepTypeDelay        StepType = "delay"
	StepTypeWebhook      StepType = "webhook"
	StepTypeEmail        StepType = "email"
	StepTypeNotification StepType = "notification"
	StepTypeGPT          StepType = "gpt"
)

// BackoffStrategy controls how the delay between retry attempts grows.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// DefaultStepTimeoutSeconds is used when a step does not declare a timeout.
const DefaultStepTimeoutSeconds = 30

// Step is one unit of work inside a workflow. Its position in Workflow.Steps is its
// execution order.
type Step struct {
	ID                   string               `json:"id"                             validate:"required"`
	Name                 string               `json:"name"                           validate:"required"`
	Type                 StepType             `json:"type"                           validate:"required,oneof=action condition delay webhook email notification gpt"`
	Configuration        map[string]any       `json:"configuration,omitempty"`
	Parameters           map[string]any       `json:"parameters,omitempty"`
	Conditions           map[string]Condition `json:"conditions,omitempty"           validate:"omitempty,dive"`
	TimeoutSeconds       int                  `json:"timeoutSeconds"                 validate:"gt=0"`
	RetryCount           int                  `json:"retryCount"                     validate:"gte=0"`
	RetryDelaySeconds    int                  `json:"retryDelaySeconds"              validate:"gte=0"`
	RetryBackoff         BackoffStrategy      `json:"retryBackoff,omitempty"         validate:"omitempty,oneof=fixed exponential"`
	MaxRetryDelaySeconds int                  `json:"maxRetryDelaySeconds,omitempty" validate:"gte=0"`
	Disabled             bool                 `json:"disabled,omitempty"`
}

// Timeout returns the per-attempt deadline, falling back to the default when unset.
func (s Step) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultStepTimeoutSeconds * time.Second
	}

	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base delay between attempts.
func (s Step) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// MaxRetryDelay returns the cap applied to exponential backoff, zero meaning uncapped.
func (s Step) MaxRetryDelay() time.Duration {
	return time.Duration(s.MaxRetryDelaySeconds) * time.Second
}

// Validate checks the step's fields and decodes its typed configuration.
func (s Step) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: step %q: %w", ErrInvalidDefinition, s.ID, err)
	}

	config, err := s.TypedConfig()
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: step %q: %w", ErrInvalidDefinition, s.ID, err)
	}

	return nil
}

// TypedConfig decodes Configuration into the variant matching the step type.
func (s Step) TypedConfig() (StepConfig, error) {
	return DecodeStepConfig(s.Type, s.Configuration)
}
