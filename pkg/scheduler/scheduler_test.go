package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/bizflow/pkg/mocks"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	fired []time.Time
	ids   []string
}

func (r *recordingRunner) RunTrigger(_ context.Context, trigger *models.Trigger, scheduledAt time.Time) models.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fired = append(r.fired, scheduledAt)
	r.ids = append(r.ids, trigger.ID)

	return models.ExecutionResult{Success: true, ExecutionID: "exec-1"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_Sync(t *testing.T) {
	daily := testutil.NewTrigger("wf-1", "", testutil.WithSchedule("0 9 * * *"))
	hourly := testutil.NewTrigger("wf-2", "", testutil.WithSchedule("@hourly"))
	inactive := testutil.NewTrigger("wf-3", "", testutil.WithSchedule("0 9 * * *"), testutil.WithTriggerActive(false))
	eventDriven := testutil.NewTrigger("wf-4", "invoice.created")
	broken := testutil.NewTrigger("wf-5", "", testutil.WithSchedule("not a cron"))

	repo := &mocks.MockTriggerRepository{}
	repo.On("GetAll", mock.Anything).Return([]*models.Trigger{daily, hourly, inactive, eventDriven, broken}, nil).Once()

	s := New(repo, &recordingRunner{}, discardLogger())

	require.NoError(t, s.Sync(context.Background()))
	assert.ElementsMatch(t, []string{daily.ID, hourly.ID}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 2)

	changed := *daily
	changed.Schedule = "30 9 * * *"

	repo.On("GetAll", mock.Anything).Return([]*models.Trigger{&changed}, nil).Once()

	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, []string{daily.ID}, s.Scheduled())
	assert.Equal(t, "30 9 * * *", s.jobs[daily.ID].schedule)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_SyncError(t *testing.T) {
	repo := &mocks.MockTriggerRepository{}
	repo.On("GetAll", mock.Anything).Return(nil, errors.New("db down"))

	s := New(repo, &recordingRunner{}, discardLogger())

	require.ErrorContains(t, s.Start(context.Background()), "db down")
}

func TestScheduler_Fire(t *testing.T) {
	runner := &recordingRunner{}
	s := New(&mocks.MockTriggerRepository{}, runner, discardLogger())
	s.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 12, 0, time.UTC) }

	trigger := testutil.NewTrigger("wf-1", "", testutil.WithSchedule("0 9 * * *"))
	s.fire(trigger)

	assert.Equal(t, []time.Time{time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}, runner.fired)
	assert.Equal(t, []string{trigger.ID}, runner.ids)
}

func TestScheduler_StartStop(t *testing.T) {
	repo := &mocks.MockTriggerRepository{}
	repo.On("GetAll", mock.Anything).Return([]*models.Trigger{}, nil)

	s := New(repo, &recordingRunner{}, discardLogger(), WithRefreshInterval(0))

	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
}
