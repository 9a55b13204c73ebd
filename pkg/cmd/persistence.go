package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/persistence/file"
	"github.com/dukex/bizflow/pkg/persistence/postgresql"
	"github.com/dukex/bizflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by the scheme of databaseURL. URLs without
// a known scheme are treated as file paths.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// ExecutionStore overrides the execution repository of a Persistence.
type ExecutionStore struct {
	persistence.Persistence

	executions persistence.ExecutionRepository
	close      func() error
}

func (s *ExecutionStore) ExecutionRepository() persistence.ExecutionRepository {
	return s.executions
}

func (s *ExecutionStore) Close(ctx context.Context) error {
	return errors.Join(s.close(), s.Persistence.Close(ctx))
}

// WithExecutionStore redirects execution records to Redis when executionStoreURL
// is set, leaving workflows, triggers and events where they are.
func WithExecutionStore(
	ctx context.Context,
	logger *slog.Logger,
	base persistence.Persistence,
	executionStoreURL string,
) (persistence.Persistence, error) {
	if executionStoreURL == "" {
		return base, nil
	}

	if !strings.HasPrefix(executionStoreURL, "redis://") && !strings.HasPrefix(executionStoreURL, "rediss://") {
		return nil, fmt.Errorf("unsupported execution store %q", executionStoreURL)
	}

	client, err := redis.Connect(ctx, executionStoreURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis execution store: %w", err)
	}

	return &ExecutionStore{
		Persistence: base,
		executions:  redis.NewExecutionRepository(client, "bizflow", logger),
		close:       client.Close,
	}, nil
}
