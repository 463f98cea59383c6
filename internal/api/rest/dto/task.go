package dto

import (
	"fmt"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

// TaskOptionsDTO mirrors models.TaskOptions on the wire, with durations in
// seconds.
type TaskOptionsDTO struct {
	RetentionDays    *int     `json:"retention_days,omitempty"`
	BatchSize        *int     `json:"batch_size,omitempty"`
	DryRun           *bool    `json:"dry_run,omitempty"`
	Tables           []string `json:"tables,omitempty"`
	Patterns         []string `json:"patterns,omitempty"`
	MaxAgeSeconds    *int     `json:"max_age_seconds,omitempty"`
	PreserveActive   *bool    `json:"preserve_active,omitempty"`
	CompressOld      *bool    `json:"compress_old,omitempty"`
	ArchivePath      *string  `json:"archive_path,omitempty"`
	IncludeProtected *bool    `json:"include_protected,omitempty"`
}

func (d *TaskOptionsDTO) Validate() error {
	if d == nil {
		return nil
	}
	if d.RetentionDays != nil && *d.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if d.BatchSize != nil && *d.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if d.MaxAgeSeconds != nil && *d.MaxAgeSeconds <= 0 {
		return fmt.Errorf("max_age_seconds must be positive")
	}
	return nil
}

// ToOptions converts the wire form to the model form.
func (d *TaskOptionsDTO) ToOptions() *models.TaskOptions {
	if d == nil {
		return nil
	}
	opts := &models.TaskOptions{
		RetentionDays:    d.RetentionDays,
		BatchSize:        d.BatchSize,
		DryRun:           d.DryRun,
		Tables:           d.Tables,
		Patterns:         d.Patterns,
		PreserveActive:   d.PreserveActive,
		CompressOld:      d.CompressOld,
		ArchivePath:      d.ArchivePath,
		IncludeProtected: d.IncludeProtected,
	}
	if d.MaxAgeSeconds != nil {
		maxAge := time.Duration(*d.MaxAgeSeconds) * time.Second
		opts.MaxAge = &maxAge
	}
	return opts
}

type ExecuteTaskRequest struct {
	Options *TaskOptionsDTO `json:"options,omitempty"`
}

type ExecuteBatchRequest struct {
	TaskTypes []string `json:"task_types"`
}

func (r *ExecuteBatchRequest) Validate() error {
	if len(r.TaskTypes) == 0 {
		return fmt.Errorf("task_types is required")
	}
	for _, t := range r.TaskTypes {
		if !models.TaskType(t).Valid() {
			return fmt.Errorf("unknown task type %q", t)
		}
	}
	return nil
}

type ResultResponse struct {
	ID          string             `json:"id"`
	TaskType    string             `json:"task_type"`
	Status      string             `json:"status"`
	Stats       models.CleanupStats `json:"stats"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	DurationMs  int64              `json:"duration_ms"`
	Error       string             `json:"error,omitempty"`
}

func ResultToResponse(result *models.CleanupResult) ResultResponse {
	return ResultResponse{
		ID:          result.ID,
		TaskType:    string(result.TaskType),
		Status:      string(result.Status),
		Stats:       result.Stats,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		DurationMs:  result.Duration.Milliseconds(),
		Error:       result.Error,
	}
}

func ResultsToResponse(results []*models.CleanupResult) []ResultResponse {
	out := make([]ResultResponse, 0, len(results))
	for _, result := range results {
		out = append(out, ResultToResponse(result))
	}
	return out
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type RunningTasksResponse struct {
	Tasks    []string              `json:"tasks"`
	Progress []models.TaskProgress `json:"progress"`
}

type EstimateResponse struct {
	Items              int   `json:"items"`
	Bytes              int64 `json:"bytes"`
	DurationEstimateMs int64 `json:"duration_estimate_ms"`
}
