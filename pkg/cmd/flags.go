package cmd

import (
	"fmt"

	"github.com/dukex/bizflow/pkg/config"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are shared by every bizflow binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file:// or postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "execution-store",
			Usage:   "Optional redis:// URL execution records are written to instead of the database",
			Sources: cli.EnvVars("EXECUTION_STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka); empty disables lifecycle events",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing action plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML engine configuration",
			Sources: cli.EnvVars("BIZFLOW_CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP relay host",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Usage:   "SMTP relay port",
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Default sender address",
			Sources: cli.EnvVars("SMTP_FROM"),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "API key of the OpenAI-compatible endpoint used by gpt steps",
			Sources: cli.EnvVars("AI_API_KEY", "OPENAI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-base-url",
			Sources: cli.EnvVars("AI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Sources: cli.EnvVars("AI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log output format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// LoadEngineConfig reads the --config file and lets explicitly set flags win.
func LoadEngineConfig(command *cli.Command) (config.EngineConfig, error) {
	c, err := config.LoadEngineConfig(command.String("config"))
	if err != nil {
		return config.EngineConfig{}, fmt.Errorf("failed to load engine config: %w", err)
	}

	setString := func(flag string, target *string) {
		if command.IsSet(flag) {
			*target = command.String(flag)
		}
	}

	setString("smtp-host", &c.SMTP.Host)
	setString("smtp-username", &c.SMTP.Username)
	setString("smtp-password", &c.SMTP.Password)
	setString("smtp-from", &c.SMTP.From)
	setString("ai-api-key", &c.AI.APIKey)
	setString("ai-base-url", &c.AI.BaseURL)
	setString("ai-model", &c.AI.Model)

	if command.IsSet("smtp-port") {
		c.SMTP.Port = int(command.Int("smtp-port"))
	}

	return c, nil
}
