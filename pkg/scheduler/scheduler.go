// Package scheduler fires cron-scheduled triggers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshInterval is how often schedules are reloaded from the store.
const DefaultRefreshInterval = time.Minute

// TriggerSource lists every stored trigger.
type TriggerSource interface {
	GetAll(ctx context.Context) ([]*models.Trigger, error)
}

// TriggerRunner runs the workflow behind a fired trigger.
type TriggerRunner interface {
	RunTrigger(ctx context.Context, trigger *models.Trigger, scheduledAt time.Time) models.ExecutionResult
}

type job struct {
	entry    cron.EntryID
	schedule string
}

type Scheduler struct {
	triggers TriggerSource
	runner   TriggerRunner
	logger   *slog.Logger
	refresh  time.Duration
	now      func() time.Time

	cron   *cron.Cron
	jobs   map[string]job
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

// WithRefreshInterval sets how often schedules are reloaded. Zero disables reloading.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.refresh = interval }
}

func New(triggers TriggerSource, runner TriggerRunner, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		triggers: triggers,
		runner:   runner,
		logger:   logger.With("module", "scheduler"),
		refresh:  DefaultRefreshInterval,
		now:      time.Now,
		jobs:     make(map[string]job),
		ctx:      context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	cronLog := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)),
	)

	return s
}

// Start loads the scheduled triggers and starts firing them. Schedules are
// reloaded every refresh interval until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "refresh_interval", s.refresh)

	s.mutex.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mutex.Unlock()

	if err := s.Sync(ctx); err != nil {
		s.cancel()

		return err
	}

	s.cron.Start()

	go s.reload()

	return nil
}

func (s *Scheduler) reload() {
	defer close(s.done)

	if s.refresh <= 0 {
		<-s.ctx.Done()

		return
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(s.ctx); err != nil {
				s.logger.Error("Failed to reload schedules", "error", err)
			}
		}
	}
}

// Sync reconciles the cron entries with the stored scheduled triggers: new
// triggers are added, removed or deactivated ones dropped, and changed schedules
// replaced.
func (s *Scheduler) Sync(ctx context.Context) error {
	triggers, err := s.triggers.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	wanted := make(map[string]struct{}, len(triggers))

	for _, trigger := range triggers {
		if !trigger.IsActive || !trigger.IsScheduled() {
			continue
		}

		wanted[trigger.ID] = struct{}{}

		if current, ok := s.jobs[trigger.ID]; ok {
			if current.schedule == trigger.Schedule {
				continue
			}

			s.cron.Remove(current.entry)
			delete(s.jobs, trigger.ID)
		}

		if err := s.add(trigger); err != nil {
			s.logger.Error("Skipping trigger with invalid schedule", "trigger_id", trigger.ID, "schedule", trigger.Schedule, "error", err)
			delete(wanted, trigger.ID)
		}
	}

	for id, current := range s.jobs {
		if _, ok := wanted[id]; !ok {
			s.logger.Info("Removing schedule", "trigger_id", id)
			s.cron.Remove(current.entry)
			delete(s.jobs, id)
		}
	}

	s.logger.Debug("Schedules synced", "scheduled", len(s.jobs))

	return nil
}

func (s *Scheduler) add(trigger *models.Trigger) error {
	schedule, err := models.ParseSchedule(trigger.Schedule)
	if err != nil {
		return err
	}

	snapshot := *trigger
	entry := s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(&snapshot) }))
	s.jobs[trigger.ID] = job{entry: entry, schedule: trigger.Schedule}

	s.logger.Info("Scheduled trigger",
		"trigger_id", trigger.ID,
		"workflow_id", trigger.WorkflowID,
		"schedule", trigger.Schedule,
		"next_run", schedule.Next(s.now().UTC()))

	return nil
}

func (s *Scheduler) fire(trigger *models.Trigger) {
	s.mutex.Lock()
	ctx := s.ctx
	s.mutex.Unlock()

	scheduledAt := s.now().UTC().Truncate(time.Minute)
	logger := s.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

	logger.Info("Firing scheduled trigger", "scheduled_at", scheduledAt)

	result := s.runner.RunTrigger(ctx, trigger, scheduledAt)
	if !result.Success {
		logger.Warn("Scheduled run failed", "execution_id", result.ExecutionID, "error", result.Error)

		return
	}

	logger.Info("Scheduled run completed", "execution_id", result.ExecutionID)
}

// Scheduled returns the ids of the triggers that currently have a cron entry.
func (s *Scheduler) Scheduled() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}

	return ids
}

// Stop halts the cron loop and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")

	s.mutex.Lock()
	cancel, done := s.cancel, s.done
	s.mutex.Unlock()

	stopped := s.cron.Stop()

	if cancel != nil {
		cancel()
		<-done
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
