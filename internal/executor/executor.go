package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediakeep/sweeper/internal/cleanup"
	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/taskman"
)

var (
	ErrTaskDisabled    = errors.New("task is disabled")
	ErrAlreadyRunning  = errors.New("task is already running")
	ErrUnknownTaskType = errors.New("unknown task type")
)

// Observer receives lifecycle events for executions. Implementations must
// not block.
type Observer interface {
	TaskStarted(taskType models.TaskType)
	TaskFinished(result *models.CleanupResult)
}

// Handlers bundles the four resource-domain implementations injected into
// the executor.
type Handlers struct {
	Files    cleanup.Handler
	Database cleanup.Handler
	Cache    cleanup.Handler
	Logs     cleanup.Handler
}

// Executor dispatches cleanup tasks to their domain handler, enforcing
// per-type exclusivity, the global concurrency bound for batches, dry-run
// pass-through and the configured hard timeout.
type Executor struct {
	cfg       *config.Manager
	handlers  Handlers
	manager   *taskman.Manager
	observers []Observer
}

func New(cfg *config.Manager, handlers Handlers, manager *taskman.Manager, observers ...Observer) *Executor {
	return &Executor{
		cfg:       cfg,
		handlers:  handlers,
		manager:   manager,
		observers: observers,
	}
}

// ExecuteTask runs one cleanup task to completion. Rejections (disabled,
// already running, unknown type) return an error and no result; every
// accepted execution returns exactly one CleanupResult, also on failure,
// cancellation and timeout.
func (e *Executor) ExecuteTask(ctx context.Context, taskType models.TaskType, opts *models.TaskOptions) (*models.CleanupResult, error) {
	handler, err := e.handlerFor(taskType)
	if err != nil {
		return nil, err
	}

	taskCfg, err := e.cfg.GetTaskConfig(taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	if !taskCfg.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrTaskDisabled, taskType)
	}

	run, ok := e.manager.TryStart(taskType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, taskType)
	}

	for _, obs := range e.observers {
		obs.TaskStarted(taskType)
	}

	req := models.Resolve(taskType, taskCfg, opts)
	result, lateHandler := e.runWithTimeout(ctx, handler, req, run, taskCfg.Timeout)

	finish := func() {
		e.manager.Finish(taskType, *result)
		for _, obs := range e.observers {
			obs.TaskFinished(result)
		}
		slog.Info("cleanup task finished",
			"task_type", taskType,
			"status", result.Status,
			"cleaned", result.Stats.CleanedCount,
			"failed", result.Stats.FailedCount,
			"duration_ms", result.Duration.Milliseconds(),
			"dry_run", req.DryRun,
		)
	}

	if lateHandler == nil {
		finish()
	} else {
		// Timed out: the exclusivity slot stays claimed until the late
		// handler goroutine exits, so a new run of the same type cannot
		// overlap its final writes.
		go func() {
			<-lateHandler
			finish()
		}()
	}
	return result, nil
}

// runWithTimeout races the handler against the task's configured timeout.
// The handler always produces a structured result; panics and raw errors
// never escape. On timeout the second return is non-nil and closes when the
// handler goroutine exits; the caller must not release the exclusivity slot
// before then.
func (e *Executor) runWithTimeout(ctx context.Context, handler cleanup.Handler, req models.TaskRequest, run *taskman.Run, timeout time.Duration) (*models.CleanupResult, <-chan struct{}) {
	result := &models.CleanupResult{
		ID:        models.NewResultID(),
		TaskType:  req.Type,
		StartedAt: time.Now(),
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		stats *models.CleanupStats
		err   error
	}
	done := make(chan outcome, 1)
	handlerExited := make(chan struct{})

	go func() {
		defer close(handlerExited)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		stats, err := handler.Execute(runCtx, req, run)
		done <- outcome{stats: stats, err: err}
	}()

	select {
	case out := <-done:
		if out.stats != nil {
			result.Stats = *out.stats
		}
		switch {
		case out.err == nil:
			result.Status = models.ResultStatusCompleted
		case errors.Is(out.err, cleanup.ErrCancelled):
			result.Status = models.ResultStatusCancelled
			result.Error = out.err.Error()
		default:
			result.Status = models.ResultStatusFailed
			result.Error = out.err.Error()
		}
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		return result, nil
	case <-runCtx.Done():
		// Flag the run so the handler stops at its next batch boundary;
		// its late outcome is discarded.
		e.manager.RequestCancel(req.Type)
		result.Status = models.ResultStatusFailed
		result.Error = fmt.Sprintf("timed out after %s", timeout)
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		return result, handlerExited
	}
}

// ExecuteBatch runs the requested types in chunks no larger than the global
// concurrency limit. Chunk n+1 starts only after every task in chunk n has
// resolved; individual failures and rejections do not abort the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, taskTypes []models.TaskType) []*models.CleanupResult {
	limit := e.cfg.GetConfig().MaxConcurrentTasks
	results := make([]*models.CleanupResult, len(taskTypes))

	for start := 0; start < len(taskTypes); start += limit {
		end := start + limit
		if end > len(taskTypes) {
			end = len(taskTypes)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, taskType models.TaskType) {
				defer wg.Done()
				result, err := e.ExecuteTask(ctx, taskType, nil)
				if err != nil {
					// Rejected before starting: surface a failed result
					// so the caller sees a per-type outcome. Nothing is
					// recorded in history for a run that never began.
					result = &models.CleanupResult{
						ID:          models.NewResultID(),
						TaskType:    taskType,
						Status:      models.ResultStatusFailed,
						StartedAt:   time.Now(),
						CompletedAt: time.Now(),
						Error:       err.Error(),
					}
				}
				results[idx] = result
			}(i, taskTypes[i])
		}
		wg.Wait()
	}

	return results
}

// CancelTask requests cooperative cancellation of a running task. It returns
// false when no execution of that type is in flight.
func (e *Executor) CancelTask(taskType models.TaskType) bool {
	cancelled := e.manager.RequestCancel(taskType)
	if cancelled {
		slog.Info("cancellation requested", "task_type", taskType)
	}
	return cancelled
}

// EstimateImpact previews what a run would touch without mutating anything.
func (e *Executor) EstimateImpact(ctx context.Context, taskType models.TaskType, opts *models.TaskOptions) (*models.ImpactEstimate, error) {
	handler, err := e.handlerFor(taskType)
	if err != nil {
		return nil, err
	}
	taskCfg, err := e.cfg.GetTaskConfig(taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	req := models.Resolve(taskType, taskCfg, opts)
	return handler.Estimate(ctx, req)
}

func (e *Executor) RunningTasks() []models.TaskType {
	return e.manager.RunningTasks()
}

func (e *Executor) IsRunning(taskType models.TaskType) bool {
	return e.manager.IsRunning(taskType)
}

// handlerFor is the single dispatch point from the task taxonomy to the
// domain handlers.
func (e *Executor) handlerFor(taskType models.TaskType) (cleanup.Handler, error) {
	switch taskType {
	case models.TaskTypeOrphanFiles, models.TaskTypeTempFiles, models.TaskTypeStorageCleanup:
		return e.handlers.Files, nil
	case models.TaskTypeExpiredTransactions, models.TaskTypeDatabaseOptimization:
		return e.handlers.Database, nil
	case models.TaskTypeCacheCleanup, models.TaskTypeSessionCleanup:
		return e.handlers.Cache, nil
	case models.TaskTypeLogCleanup:
		return e.handlers.Logs, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
}
