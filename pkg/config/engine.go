// Package config loads the optional YAML engine configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxRetryCount         = 10
	DefaultWebhookTimeoutSeconds = 30
	DefaultAITimeoutSeconds      = 60
	DefaultSMTPPort              = 587
)

// EngineConfig holds step defaults and delivery collaborator settings.
type EngineConfig struct {
	DefaultTimeoutSeconds int           `yaml:"default_timeout_seconds"`
	MaxRetryCount         int           `yaml:"max_retry_count"`
	Backoff               BackoffConfig `yaml:"backoff"`
	SMTP                  SMTPConfig    `yaml:"smtp"`
	AI                    AIConfig      `yaml:"ai"`
	Webhook               WebhookConfig `yaml:"webhook"`
}

// BackoffConfig is applied to steps that do not declare their own strategy.
type BackoffConfig struct {
	Strategy        models.BackoffStrategy `yaml:"strategy"`
	MaxDelaySeconds int                    `yaml:"max_delay_seconds"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebhookConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoadEngineConfig reads path and applies defaults. An empty path yields the
// default configuration.
func LoadEngineConfig(path string) (EngineConfig, error) {
	var config EngineConfig

	if path == "" {
		return config.WithDefaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config = config.WithDefaults()

	if err := config.Validate(); err != nil {
		return EngineConfig{}, err
	}

	return config, nil
}

// WithDefaults returns a copy with every unset field filled in.
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.DefaultTimeoutSeconds <= 0 {
		c.DefaultTimeoutSeconds = models.DefaultStepTimeoutSeconds
	}

	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = DefaultMaxRetryCount
	}

	if c.Backoff.Strategy == "" {
		c.Backoff.Strategy = models.BackoffFixed
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}

	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = DefaultAITimeoutSeconds
	}

	if c.Webhook.TimeoutSeconds <= 0 {
		c.Webhook.TimeoutSeconds = DefaultWebhookTimeoutSeconds
	}

	return c
}

func (c EngineConfig) Validate() error {
	switch c.Backoff.Strategy {
	case models.BackoffFixed, models.BackoffExponential:
	default:
		return fmt.Errorf("backoff.strategy: unsupported value %q", c.Backoff.Strategy)
	}

	if c.Backoff.MaxDelaySeconds < 0 {
		return errors.New("backoff.max_delay_seconds must not be negative")
	}

	return nil
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
