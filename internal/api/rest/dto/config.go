package dto

import (
	"fmt"
	"time"

	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/models"
)

// TaskConfigResponse is the wire form of one task's policy, durations in
// seconds.
type TaskConfigResponse struct {
	Enabled        bool   `json:"enabled"`
	Priority       string `json:"priority"`
	Schedule       string `json:"schedule,omitempty"`
	MaxRetries     int    `json:"max_retries"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetentionDays  int    `json:"retention_days"`
	BatchSize      int    `json:"batch_size"`
	DryRun         bool   `json:"dry_run"`
}

func TaskConfigToResponse(cfg models.TaskConfig) TaskConfigResponse {
	return TaskConfigResponse{
		Enabled:        cfg.Enabled,
		Priority:       string(cfg.Priority),
		Schedule:       cfg.Schedule,
		MaxRetries:     cfg.MaxRetries,
		TimeoutSeconds: int(cfg.Timeout / time.Second),
		RetentionDays:  cfg.RetentionDays,
		BatchSize:      cfg.BatchSize,
		DryRun:         cfg.DryRun,
	}
}

// ConfigResponse is the global config view. Credentials are not echoed back.
type ConfigResponse struct {
	MaxConcurrentTasks    int                           `json:"max_concurrent_tasks"`
	DefaultTimeoutSeconds int                           `json:"default_timeout_seconds"`
	RetryDelaySeconds     int                           `json:"retry_delay_seconds"`
	StorageEndpoint       string                        `json:"storage_endpoint"`
	StorageBucket         string                        `json:"storage_bucket"`
	Tasks                 map[string]TaskConfigResponse `json:"tasks"`
}

func ConfigToResponse(cfg config.Config) ConfigResponse {
	tasks := make(map[string]TaskConfigResponse, len(cfg.Tasks))
	for taskType, taskCfg := range cfg.Tasks {
		tasks[string(taskType)] = TaskConfigToResponse(taskCfg)
	}
	return ConfigResponse{
		MaxConcurrentTasks:    cfg.MaxConcurrentTasks,
		DefaultTimeoutSeconds: int(cfg.DefaultTimeout / time.Second),
		RetryDelaySeconds:     int(cfg.RetryDelay / time.Second),
		StorageEndpoint:       cfg.StorageEndpoint,
		StorageBucket:         cfg.StorageBucket,
		Tasks:                 tasks,
	}
}

type UpdateGlobalConfigRequest struct {
	MaxConcurrentTasks    *int `json:"max_concurrent_tasks,omitempty"`
	DefaultTimeoutSeconds *int `json:"default_timeout_seconds,omitempty"`
	RetryDelaySeconds     *int `json:"retry_delay_seconds,omitempty"`
}

func (r *UpdateGlobalConfigRequest) ToUpdate() config.GlobalUpdate {
	update := config.GlobalUpdate{MaxConcurrentTasks: r.MaxConcurrentTasks}
	if r.DefaultTimeoutSeconds != nil {
		d := time.Duration(*r.DefaultTimeoutSeconds) * time.Second
		update.DefaultTimeout = &d
	}
	if r.RetryDelaySeconds != nil {
		d := time.Duration(*r.RetryDelaySeconds) * time.Second
		update.RetryDelay = &d
	}
	return update
}

type UpdateTaskConfigRequest struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	Priority       *string `json:"priority,omitempty"`
	Schedule       *string `json:"schedule,omitempty"`
	MaxRetries     *int    `json:"max_retries,omitempty"`
	TimeoutSeconds *int    `json:"timeout_seconds,omitempty"`
	RetentionDays  *int    `json:"retention_days,omitempty"`
	BatchSize      *int    `json:"batch_size,omitempty"`
	DryRun         *bool   `json:"dry_run,omitempty"`
}

func (r *UpdateTaskConfigRequest) Validate() error {
	if r.Priority != nil {
		switch models.TaskPriority(*r.Priority) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		default:
			return fmt.Errorf("priority must be one of low, medium, high")
		}
	}
	return nil
}

func (r *UpdateTaskConfigRequest) ToUpdate() config.TaskConfigUpdate {
	update := config.TaskConfigUpdate{
		Enabled:       r.Enabled,
		Schedule:      r.Schedule,
		MaxRetries:    r.MaxRetries,
		RetentionDays: r.RetentionDays,
		BatchSize:     r.BatchSize,
		DryRun:        r.DryRun,
	}
	if r.Priority != nil {
		p := models.TaskPriority(*r.Priority)
		update.Priority = &p
	}
	if r.TimeoutSeconds != nil {
		d := time.Duration(*r.TimeoutSeconds) * time.Second
		update.Timeout = &d
	}
	return update
}

type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type ImportConfigRequest struct {
	Config string `json:"config"`
}
