package report

import (
	"fmt"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

const (
	failureRateThreshold  = 0.10
	slowAverageThreshold  = 5 * time.Minute
	largeReclaimThreshold = int64(1 << 30)  // 1 GiB
	smallReclaimThreshold = int64(100 << 20) // 100 MiB
	dominanceThreshold    = 0.50
)

// HistoryProvider supplies the result history the reporter aggregates.
type HistoryProvider interface {
	History(limit int) []models.CleanupResult
}

// ScheduleProvider supplies upcoming scheduled-run hints.
type ScheduleProvider interface {
	UpcomingRuns() []ScheduledRun
}

// ScheduledRun is a hint about when a task type fires next.
type ScheduledRun struct {
	TaskType models.TaskType `json:"task_type"`
	NextRun  time.Time       `json:"next_run"`
}

// Period is the report window.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Summary holds the window's aggregate counters.
type Summary struct {
	TotalTasks      int           `json:"total_tasks"`
	SuccessfulTasks int           `json:"successful_tasks"`
	FailedTasks     int           `json:"failed_tasks"`
	CancelledTasks  int           `json:"cancelled_tasks"`
	ItemsProcessed  int           `json:"items_processed"`
	ItemsDeleted    int           `json:"items_deleted"`
	BytesFreed      int64         `json:"bytes_freed"`
	TotalDuration   time.Duration `json:"total_duration"`
}

// CleanupReport aggregates a window of results with recommendations and
// next-run hints. Generated on demand, never persisted.
type CleanupReport struct {
	Period          Period          `json:"period"`
	Summary         Summary         `json:"summary"`
	Recommendations []string        `json:"recommendations"`
	UpcomingRuns    []ScheduledRun  `json:"upcoming_runs,omitempty"`
	Results         []models.CleanupResult `json:"results,omitempty"`
}

type Trend string

const (
	TrendImproved Trend = "improved"
	TrendDeclined Trend = "declined"
	TrendStable   Trend = "stable"
)

// TaskTypeReport adds trend labels comparing the recent half of the window
// against the older half.
type TaskTypeReport struct {
	TaskType           models.TaskType `json:"task_type"`
	Report             CleanupReport   `json:"report"`
	ExecutionTrend     Trend           `json:"execution_trend"`
	PerformanceTrend   Trend           `json:"performance_trend"`
	EffectivenessTrend Trend           `json:"effectiveness_trend"`
}

// Reporter turns historical results into reports and recommendations.
type Reporter struct {
	history  HistoryProvider
	schedule ScheduleProvider
}

func NewReporter(history HistoryProvider, schedule ScheduleProvider) *Reporter {
	return &Reporter{history: history, schedule: schedule}
}

// GenerateReport aggregates the given window, defaulting to the last 24h.
func (r *Reporter) GenerateReport(period *Period) *CleanupReport {
	window := resolvePeriod(period)
	results := r.windowed(window, "")

	report := &CleanupReport{
		Period:  window,
		Summary: summarize(results),
		Results: results,
	}
	report.Recommendations = recommend(report.Summary, results)
	if r.schedule != nil {
		report.UpcomingRuns = r.schedule.UpcomingRuns()
	}
	return report
}

// GenerateTaskTypeReport reports on one task type and labels its trends by
// comparing the recent sub-window against the older one.
func (r *Reporter) GenerateTaskTypeReport(taskType models.TaskType, period *Period) *TaskTypeReport {
	window := resolvePeriod(period)
	results := r.windowed(window, taskType)

	report := &TaskTypeReport{
		TaskType: taskType,
		Report: CleanupReport{
			Period:  window,
			Summary: summarize(results),
			Results: results,
		},
	}
	report.Report.Recommendations = recommend(report.Report.Summary, results)

	midpoint := window.From.Add(window.To.Sub(window.From) / 2)
	older := make([]models.CleanupResult, 0)
	recent := make([]models.CleanupResult, 0)
	for _, result := range results {
		if result.CompletedAt.Before(midpoint) {
			older = append(older, result)
		} else {
			recent = append(recent, result)
		}
	}

	report.ExecutionTrend = compare(successRate(recent), successRate(older), 0.05)
	// Lower average duration is better, so the comparison is inverted.
	report.PerformanceTrend = compare(-averageDuration(recent).Seconds(), -averageDuration(older).Seconds(), 1.0)
	report.EffectivenessTrend = compare(averageCleaned(recent), averageCleaned(older), 0.5)
	return report
}

func (r *Reporter) windowed(window Period, taskType models.TaskType) []models.CleanupResult {
	all := r.history.History(0)
	results := make([]models.CleanupResult, 0)
	for _, result := range all {
		if result.CompletedAt.Before(window.From) || result.CompletedAt.After(window.To) {
			continue
		}
		if taskType != "" && result.TaskType != taskType {
			continue
		}
		results = append(results, result)
	}
	return results
}

func resolvePeriod(period *Period) Period {
	if period != nil {
		return *period
	}
	now := time.Now()
	return Period{From: now.Add(-24 * time.Hour), To: now}
}

func summarize(results []models.CleanupResult) Summary {
	summary := Summary{}
	for _, result := range results {
		summary.TotalTasks++
		switch result.Status {
		case models.ResultStatusCompleted:
			summary.SuccessfulTasks++
		case models.ResultStatusFailed:
			summary.FailedTasks++
		case models.ResultStatusCancelled:
			summary.CancelledTasks++
		}
		summary.ItemsProcessed += result.Stats.ProcessedCount
		summary.ItemsDeleted += result.Stats.CleanedCount
		summary.BytesFreed += result.Stats.BytesFreed
		summary.TotalDuration += result.Duration
	}
	return summary
}

func recommend(summary Summary, results []models.CleanupResult) []string {
	recommendations := make([]string, 0)
	if summary.TotalTasks == 0 {
		return recommendations
	}

	failureRate := float64(summary.FailedTasks) / float64(summary.TotalTasks)
	if failureRate > failureRateThreshold {
		recommendations = append(recommendations, fmt.Sprintf(
			"failure rate is %.0f%%; investigate task configuration and resource availability", failureRate*100))
	}

	average := summary.TotalDuration / time.Duration(summary.TotalTasks)
	if average > slowAverageThreshold {
		recommendations = append(recommendations, fmt.Sprintf(
			"average task duration is %s; consider optimizing the cleanup strategy", average.Round(time.Second)))
	}

	switch {
	case summary.BytesFreed > largeReclaimThreshold:
		recommendations = append(recommendations,
			"cleanup is reclaiming significant storage; keep the current cadence")
	case summary.BytesFreed < smallReclaimThreshold:
		recommendations = append(recommendations,
			"cleanup reclaimed little storage; consider reducing the frequency")
	}

	counts := make(map[models.TaskType]int)
	for _, result := range results {
		counts[result.TaskType]++
	}
	for taskType, count := range counts {
		if float64(count)/float64(summary.TotalTasks) > dominanceThreshold {
			recommendations = append(recommendations, fmt.Sprintf(
				"task type %s accounts for more than half of all executions; review its schedule", taskType))
		}
	}

	return recommendations
}

func successRate(results []models.CleanupResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var succeeded int
	for _, result := range results {
		if result.Status == models.ResultStatusCompleted {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(results))
}

func averageDuration(results []models.CleanupResult) time.Duration {
	if len(results) == 0 {
		return 0
	}
	var total time.Duration
	for _, result := range results {
		total += result.Duration
	}
	return total / time.Duration(len(results))
}

func averageCleaned(results []models.CleanupResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var total int
	for _, result := range results {
		total += result.Stats.CleanedCount
	}
	return float64(total) / float64(len(results))
}

// compare labels recent vs older values, treating differences below epsilon
// as stable. Empty sub-windows are stable by definition.
func compare(recent, older, epsilon float64) Trend {
	diff := recent - older
	if diff > epsilon {
		return TrendImproved
	}
	if diff < -epsilon {
		return TrendDeclined
	}
	return TrendStable
}
