package taskman

import (
	"sync"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

// DefaultHistoryLimit bounds the result history when no limit is configured.
const DefaultHistoryLimit = 1000

// Run is the handle for one in-flight execution. It doubles as the progress
// sink handlers write through and the cancellation flag they poll.
type Run struct {
	taskType models.TaskType
	manager  *Manager

	mu        sync.Mutex
	cancelled bool
}

// Progress updates the live progress record for this run.
func (r *Run) Progress(step string, itemsProcessed, estimatedTotal int) {
	r.manager.updateProgress(r.taskType, step, itemsProcessed, estimatedTotal)
}

// Cancelled reports whether cancellation was requested. Handlers poll this at
// batch boundaries; it is never preemptive.
func (r *Run) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Run) cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// Manager tracks the running-task set, live progress and the bounded result
// history, and answers derived statistics queries.
type Manager struct {
	mu           sync.RWMutex
	running      map[models.TaskType]*runState
	history      []models.CleanupResult
	historyLimit int
	firstStarted time.Time
}

type runState struct {
	run      *Run
	progress models.TaskProgress
}

func NewManager(historyLimit int) *Manager {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Manager{
		running:      make(map[models.TaskType]*runState),
		history:      make([]models.CleanupResult, 0),
		historyLimit: historyLimit,
	}
}

// TryStart claims the task type's exclusivity slot. It returns false when an
// execution of the same type is already in flight.
func (m *Manager) TryStart(taskType models.TaskType) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.running[taskType]; exists {
		return nil, false
	}

	now := time.Now()
	if m.firstStarted.IsZero() {
		m.firstStarted = now
	}

	run := &Run{taskType: taskType, manager: m}
	m.running[taskType] = &runState{
		run: run,
		progress: models.TaskProgress{
			TaskType:  taskType,
			Status:    models.ProgressStatusRunning,
			StartedAt: now,
		},
	}
	return run, true
}

// Finish records the result and releases the exclusivity slot. The executor
// calls it exactly once per accepted execution; after a timeout that happens
// only when the late handler goroutine has exited.
func (m *Manager) Finish(taskType models.TaskType, result models.CleanupResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.running, taskType)

	m.history = append(m.history, result)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
}

// RequestCancel flags the running task for cooperative cancellation. Returns
// false if the task type is not running.
func (m *Manager) RequestCancel(taskType models.TaskType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.running[taskType]
	if !ok {
		return false
	}
	state.run.cancel()
	state.progress.Status = models.ProgressStatusCancelling
	return true
}

func (m *Manager) IsRunning(taskType models.TaskType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.running[taskType]
	return ok
}

func (m *Manager) RunningTasks() []models.TaskType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]models.TaskType, 0, len(m.running))
	for taskType := range m.running {
		tasks = append(tasks, taskType)
	}
	return tasks
}

func (m *Manager) GetProgress(taskType models.TaskType) (models.TaskProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.running[taskType]
	if !ok {
		return models.TaskProgress{}, false
	}
	return state.progress, true
}

func (m *Manager) AllProgress() []models.TaskProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	progress := make([]models.TaskProgress, 0, len(m.running))
	for _, state := range m.running {
		progress = append(progress, state.progress)
	}
	return progress
}

func (m *Manager) updateProgress(taskType models.TaskType, step string, itemsProcessed, estimatedTotal int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.running[taskType]
	if !ok {
		return
	}
	state.progress.CurrentStep = step
	state.progress.ItemsProcessed = itemsProcessed
	if estimatedTotal > 0 {
		state.progress.EstimatedTotal = estimatedTotal
		state.progress.Percent = float64(itemsProcessed) / float64(estimatedTotal) * 100
	}
}

// History returns the newest results first, at most limit entries (all when
// limit <= 0).
func (m *Manager) History(limit int) []models.CleanupResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	results := make([]models.CleanupResult, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(results) < n; i-- {
		results = append(results, m.history[i])
	}
	return results
}

// Stats is the full derived-statistics snapshot.
type Stats struct {
	TotalExecuted    int             `json:"total_executed"`
	SuccessRate      float64         `json:"success_rate"`
	AverageDuration  time.Duration   `json:"average_duration"`
	TotalBytesFreed  int64           `json:"total_bytes_freed"`
	MostFrequentTask models.TaskType `json:"most_frequent_task,omitempty"`
	LastExecution    time.Time       `json:"last_execution,omitzero"`
	Uptime           time.Duration   `json:"uptime"`
}

func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalExecuted: len(m.history)}
	if !m.firstStarted.IsZero() {
		stats.Uptime = time.Since(m.firstStarted)
	}
	if len(m.history) == 0 {
		return stats
	}

	var succeeded int
	var totalDuration time.Duration
	counts := make(map[models.TaskType]int)
	for _, result := range m.history {
		if result.Status == models.ResultStatusCompleted {
			succeeded++
		}
		totalDuration += result.Duration
		stats.TotalBytesFreed += result.Stats.BytesFreed
		counts[result.TaskType]++
	}

	stats.SuccessRate = float64(succeeded) / float64(len(m.history))
	stats.AverageDuration = totalDuration / time.Duration(len(m.history))
	stats.LastExecution = m.history[len(m.history)-1].CompletedAt

	best := 0
	for taskType, count := range counts {
		if count > best {
			best = count
			stats.MostFrequentTask = taskType
		}
	}
	return stats
}

// SuccessRateFor computes the success rate for one task type; the second
// return is false when that type has no history.
func (m *Manager) SuccessRateFor(taskType models.TaskType) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, succeeded int
	for _, result := range m.history {
		if result.TaskType != taskType {
			continue
		}
		total++
		if result.Status == models.ResultStatusCompleted {
			succeeded++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(succeeded) / float64(total), true
}

// RecentErrors flattens the error lists of failed results, newest first.
func (m *Manager) RecentErrors(limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errs := make([]string, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(errs) < limit; i-- {
		result := m.history[i]
		if result.Status != models.ResultStatusFailed {
			continue
		}
		if result.Error != "" {
			errs = append(errs, result.Error)
		}
		for _, e := range result.Stats.Errors {
			if len(errs) >= limit {
				break
			}
			errs = append(errs, e)
		}
	}
	return errs
}

// FailedEligibleForRetry returns failed results inside the lookback window
// whose task type is not currently running.
func (m *Manager) FailedEligibleForRetry(lookback time.Duration) []models.CleanupResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-lookback)
	eligible := make([]models.CleanupResult, 0)
	for _, result := range m.history {
		if result.Status != models.ResultStatusFailed {
			continue
		}
		if result.CompletedAt.Before(cutoff) {
			continue
		}
		if _, running := m.running[result.TaskType]; running {
			continue
		}
		eligible = append(eligible, result)
	}
	return eligible
}
