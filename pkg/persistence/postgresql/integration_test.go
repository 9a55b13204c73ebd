//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"execution_logs", "executions", "webhook_events", "triggers", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("bizflow_test"),
			postgres.WithUsername("bizflow"),
			postgres.WithPassword("bizflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func TestIntegration_WorkflowAndTriggers(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := &models.Workflow{
		ID:       "wf-invoice",
		Name:     "Invoice follow-up",
		Owner:    "owner-1",
		IsActive: true,
		Steps: []models.Step{
			{ID: "mail", Name: "Mail", Type: models.StepTypeEmail, TimeoutSeconds: 30,
				Configuration: map[string]any{"to": "{{customer.email}}"}},
		},
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	trigger := &models.Trigger{ID: "t1", WorkflowID: workflow.ID, EventType: "invoice.created", IsActive: true}
	require.NoError(t, p.TriggerRepository().Save(ctx, trigger))

	stored, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "{{customer.email}}", stored.Steps[0].Configuration["to"])

	triggers, err := p.TriggerRepository().GetByEventType(ctx, "invoice.created")
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err = p.TriggerRepository().GetByID(ctx, "t1")
	assert.True(t, persistence.IsTriggerNotFound(err))
}

func TestIntegration_ExecutionLifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ExecutionRepository()

	id, err := repo.CreateExecution(ctx, "wf-1", "actor-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendLog(ctx, id, "mail", models.StepEvent{Kind: models.StepEventStarted, Attempt: i + 1}))
		}()
	}

	wg.Wait()

	require.NoError(t, repo.UpdateExecution(ctx, id, models.ExecutionStatusCompleted, map[string]any{"ok": true}, ""))
	require.NoError(t, repo.UpdateExecution(ctx, id, models.ExecutionStatusRunning, nil, ""))

	execution, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.NotNil(t, execution.CompletedAt)

	logs, err := repo.GetLogs(ctx, id)
	require.NoError(t, err)
	assert.Len(t, logs, 10)
}
