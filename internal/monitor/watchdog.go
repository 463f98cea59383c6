package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/taskman"
)

// Watchdog periodically scans the running set and requests cancellation of
// tasks stuck past their configured timeout plus a grace period. It is a
// safety net behind the executor's own deadline race.
type Watchdog struct {
	cfg      *config.Manager
	manager  *taskman.Manager
	interval time.Duration
	grace    time.Duration
}

func NewWatchdog(cfg *config.Manager, manager *taskman.Manager, interval, grace time.Duration) *Watchdog {
	return &Watchdog{
		cfg:      cfg,
		manager:  manager,
		interval: interval,
		grace:    grace,
	}
}

func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("watchdog started", "interval", w.interval, "grace", w.grace)

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-ctx.Done():
			slog.Info("watchdog stopped")
			return
		}
	}
}

func (w *Watchdog) check() {
	now := time.Now()
	for _, progress := range w.manager.AllProgress() {
		taskCfg, err := w.cfg.GetTaskConfig(progress.TaskType)
		if err != nil {
			continue
		}

		deadline := progress.StartedAt.Add(taskCfg.Timeout + w.grace)
		if now.Before(deadline) {
			continue
		}

		if w.manager.RequestCancel(progress.TaskType) {
			slog.Warn("task exceeded its deadline, cancellation requested",
				"task_type", progress.TaskType,
				"started_at", progress.StartedAt,
				"timeout", taskCfg.Timeout,
			)
		}
	}
}
