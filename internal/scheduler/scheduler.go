package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/executor"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/report"
)

// Scheduler is the cron trigger and the sole periodic caller of the
// executor. The executor itself stays scheduling-agnostic.
type Scheduler struct {
	cfg  *config.Manager
	exec *executor.Executor
	cron *cron.Cron

	mu      sync.Mutex
	entries map[models.TaskType]cron.EntryID
}

func New(cfg *config.Manager, exec *executor.Executor) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		exec:    exec,
		cron:    cron.New(),
		entries: make(map[models.TaskType]cron.EntryID),
	}
}

// Start registers one cron entry per enabled task with a schedule hint and
// starts the trigger loop.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg := s.cfg.GetConfig()

	for taskType, taskCfg := range cfg.Tasks {
		if !taskCfg.Enabled || taskCfg.Schedule == "" {
			continue
		}
		if err := s.register(ctx, taskType, taskCfg.Schedule); err != nil {
			return err
		}
	}

	s.cron.Start()
	slog.Info("scheduler started", "entries", len(s.entries))
	return nil
}

func (s *Scheduler) register(ctx context.Context, taskType models.TaskType, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.trigger(ctx, taskType)
	})
	if err != nil {
		return err
	}
	s.entries[taskType] = entryID
	slog.Info("task scheduled", "task_type", taskType, "schedule", schedule)
	return nil
}

// trigger invokes one execution. Exclusivity rejections are expected when a
// previous run overruns its interval and are only logged.
func (s *Scheduler) trigger(ctx context.Context, taskType models.TaskType) {
	result, err := s.exec.ExecuteTask(ctx, taskType, nil)
	switch {
	case errors.Is(err, executor.ErrAlreadyRunning):
		slog.Warn("skipping scheduled run, previous run still in flight", "task_type", taskType)
	case errors.Is(err, executor.ErrTaskDisabled):
		slog.Info("skipping scheduled run, task disabled", "task_type", taskType)
	case err != nil:
		slog.Error("scheduled run rejected", "task_type", taskType, "error", err)
	default:
		slog.Info("scheduled run finished", "task_type", taskType, "status", result.Status)
	}
}

// Stop halts the trigger loop, waiting for in-flight cron callbacks.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("scheduler stopped")
}

// UpcomingRuns lists the next fire time per scheduled task, soonest first.
func (s *Scheduler) UpcomingRuns() []report.ScheduledRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]report.ScheduledRun, 0, len(s.entries))
	for taskType, entryID := range s.entries {
		entry := s.cron.Entry(entryID)
		if entry.ID == 0 {
			continue
		}
		runs = append(runs, report.ScheduledRun{
			TaskType: taskType,
			NextRun:  entry.Next,
		})
	}
	for i := range runs {
		for j := i + 1; j < len(runs); j++ {
			if runs[j].NextRun.Before(runs[i].NextRun) {
				runs[i], runs[j] = runs[j], runs[i]
			}
		}
	}
	return runs
}
