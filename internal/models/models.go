package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskType enumerates the cleanup domains the orchestrator knows about.
// Adding a value requires extending the executor dispatch switch.
type TaskType string

const (
	TaskTypeOrphanFiles          TaskType = "orphan_files"
	TaskTypeExpiredTransactions  TaskType = "expired_transactions"
	TaskTypeTempFiles            TaskType = "temp_files"
	TaskTypeLogCleanup           TaskType = "log_cleanup"
	TaskTypeCacheCleanup         TaskType = "cache_cleanup"
	TaskTypeDatabaseOptimization TaskType = "database_optimization"
	TaskTypeStorageCleanup       TaskType = "storage_cleanup"
	TaskTypeSessionCleanup       TaskType = "session_cleanup"
)

// AllTaskTypes returns the canonical taxonomy.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeOrphanFiles,
		TaskTypeExpiredTransactions,
		TaskTypeTempFiles,
		TaskTypeLogCleanup,
		TaskTypeCacheCleanup,
		TaskTypeDatabaseOptimization,
		TaskTypeStorageCleanup,
		TaskTypeSessionCleanup,
	}
}

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeOrphanFiles, TaskTypeExpiredTransactions, TaskTypeTempFiles,
		TaskTypeLogCleanup, TaskTypeCacheCleanup, TaskTypeDatabaseOptimization,
		TaskTypeStorageCleanup, TaskTypeSessionCleanup:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskConfig is the per-type operating policy. Mutable through the config
// manager only; the executor reads a snapshot at dispatch time.
type TaskConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Priority      TaskPriority  `json:"priority" yaml:"priority"`
	Schedule      string        `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	RetentionDays int           `json:"retention_days" yaml:"retention_days"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	DryRun        bool          `json:"dry_run" yaml:"dry_run"`
}

// TaskOptions carries call-time overrides. Nil fields fall back to the
// stored TaskConfig; set fields win.
type TaskOptions struct {
	RetentionDays    *int           `json:"retention_days,omitempty"`
	BatchSize        *int           `json:"batch_size,omitempty"`
	DryRun           *bool          `json:"dry_run,omitempty"`
	Tables           []string       `json:"tables,omitempty"`
	Patterns         []string       `json:"patterns,omitempty"`
	MaxAge           *time.Duration `json:"max_age,omitempty"`
	PreserveActive   *bool          `json:"preserve_active,omitempty"`
	CompressOld      *bool          `json:"compress_old,omitempty"`
	ArchivePath      *string        `json:"archive_path,omitempty"`
	IncludeProtected *bool          `json:"include_protected,omitempty"`
}

// TaskRequest is the fully-resolved input a handler executes: stored config
// with call-time options merged over it.
type TaskRequest struct {
	Type             TaskType
	RetentionDays    int
	BatchSize        int
	DryRun           bool
	Tables           []string
	Patterns         []string
	MaxAge           time.Duration
	PreserveActive   bool
	CompressOld      bool
	ArchivePath      string
	IncludeProtected bool
}

// Resolve merges call-time options over the stored config.
func Resolve(taskType TaskType, cfg TaskConfig, opts *TaskOptions) TaskRequest {
	req := TaskRequest{
		Type:          taskType,
		RetentionDays: cfg.RetentionDays,
		BatchSize:     cfg.BatchSize,
		DryRun:        cfg.DryRun,
	}
	if opts == nil {
		return req
	}
	if opts.RetentionDays != nil {
		req.RetentionDays = *opts.RetentionDays
	}
	if opts.BatchSize != nil {
		req.BatchSize = *opts.BatchSize
	}
	if opts.DryRun != nil {
		req.DryRun = *opts.DryRun
	}
	if opts.MaxAge != nil {
		req.MaxAge = *opts.MaxAge
	}
	if opts.PreserveActive != nil {
		req.PreserveActive = *opts.PreserveActive
	}
	if opts.CompressOld != nil {
		req.CompressOld = *opts.CompressOld
	}
	if opts.ArchivePath != nil {
		req.ArchivePath = *opts.ArchivePath
	}
	if opts.IncludeProtected != nil {
		req.IncludeProtected = *opts.IncludeProtected
	}
	req.Tables = opts.Tables
	req.Patterns = opts.Patterns
	return req
}

type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
	ResultStatusCancelled ResultStatus = "cancelled"
)

type ProgressStatus string

const (
	ProgressStatusRunning    ProgressStatus = "running"
	ProgressStatusCancelling ProgressStatus = "cancelling"
)

// TaskProgress is the live state of one in-flight execution. It exists only
// while the task is in the running set.
type TaskProgress struct {
	TaskType       TaskType       `json:"task_type"`
	Status         ProgressStatus `json:"status"`
	Percent        float64        `json:"percent"`
	CurrentStep    string         `json:"current_step"`
	ItemsProcessed int            `json:"items_processed"`
	EstimatedTotal int            `json:"estimated_total"`
	StartedAt      time.Time      `json:"started_at"`
}

// CleanupStats are the outcome counters of one execution. Immutable once the
// handler returns them.
type CleanupStats struct {
	ProcessedCount int      `json:"processed_count"`
	CleanedCount   int      `json:"cleaned_count"`
	FailedCount    int      `json:"failed_count"`
	SkippedCount   int      `json:"skipped_count"`
	BytesFreed     int64    `json:"bytes_freed"`
	Errors         []string `json:"errors,omitempty"`
}

// CleanupResult wraps CleanupStats with identity, status and timing. Exactly
// one is produced per execution, success or failure.
type CleanupResult struct {
	ID          string        `json:"id"`
	TaskType    TaskType      `json:"task_type"`
	Status      ResultStatus  `json:"status"`
	Stats       CleanupStats  `json:"stats"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ImpactEstimate is a heuristic preview of what a run would touch. Producing
// one never mutates any resource.
type ImpactEstimate struct {
	Items            int           `json:"items"`
	Bytes            int64         `json:"bytes"`
	DurationEstimate time.Duration `json:"duration_estimate"`
}

// OrphanFileInfo describes a storage object with no referencing media record.
// Recorded in the orphan registry before any deletion decision.
type OrphanFileInfo struct {
	Key             string    `json:"key"`
	Size            int64     `json:"size"`
	LastModified    time.Time `json:"last_modified"`
	IsProtected     bool      `json:"is_protected"`
	RetentionExpiry time.Time `json:"retention_expiry"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusUploaded TransactionStatus = "uploaded"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusCleaned  TransactionStatus = "cleaned"
)

// Terminal reports whether the transaction needs no further cleanup.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusUploaded || s == TransactionStatusCleaned
}

// UploadTransaction is a multi-step media upload tracked in the persistent
// store. Expired non-terminal transactions are reaped by the database handler.
type UploadTransaction struct {
	ID        string
	MediaKey  string
	Status    TransactionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

type CompensationStatus string

const (
	CompensationStatusPending           CompensationStatus = "pending"
	CompensationStatusResolved          CompensationStatus = "resolved"
	CompensationStatusFailed            CompensationStatus = "failed"
	CompensationStatusPermanentlyFailed CompensationStatus = "permanently_failed"
)

type CompensationActionType string

const (
	CompensationActionDelete   CompensationActionType = "delete"
	CompensationActionRollback CompensationActionType = "rollback"
)

// CompensationAction is a remedial operation queued when an upload failed
// partway. Retried until resolved or the retry budget is exhausted.
type CompensationAction struct {
	ID            string
	TransactionID string
	ActionType    CompensationActionType
	TargetKey     string
	Status        CompensationStatus
	RetryCount    int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}

// SessionRecord is the parsed form of a cache-resident session entry.
type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	IsActive   bool      `json:"is_active"`
}

// NewResultID returns a fresh execution identifier.
func NewResultID() string {
	return uuid.New().String()
}
