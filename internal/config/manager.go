package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/mediakeep/sweeper/internal/models"
)

var ErrUnknownTaskType = errors.New("unknown task type")

// scheduleParser accepts standard five-field cron expressions.
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Config is the runtime configuration the orchestrator operates under.
type Config struct {
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	DefaultTimeout     time.Duration `yaml:"default_timeout"`
	RetryDelay         time.Duration `yaml:"retry_delay"`

	StorageEndpoint  string `yaml:"storage_endpoint"`
	StorageAccessKey string `yaml:"storage_access_key"`
	StorageSecretKey string `yaml:"storage_secret_key"`
	StorageBucket    string `yaml:"storage_bucket"`

	DatabaseURL string `yaml:"database_url"`

	Tasks map[models.TaskType]models.TaskConfig `yaml:"tasks"`
}

// GlobalUpdate is a partial update of the global settings. Nil fields are
// left unchanged.
type GlobalUpdate struct {
	MaxConcurrentTasks *int
	DefaultTimeout     *time.Duration
	RetryDelay         *time.Duration
}

// TaskConfigUpdate is a partial update of one task's policy. Nil fields are
// left unchanged.
type TaskConfigUpdate struct {
	Enabled       *bool
	Priority      *models.TaskPriority
	Schedule      *string
	MaxRetries    *int
	Timeout       *time.Duration
	RetentionDays *int
	BatchSize     *int
	DryRun        *bool
}

// ValidationResult reports whether a config is usable and why not.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Manager holds, validates and mutates the runtime configuration. All reads
// return copies; mutations are all-or-nothing after validation.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if result := validate(&cfg); !result.Valid {
		return nil, fmt.Errorf("invalid config: %v", result.Errors)
	}
	return &Manager{cfg: cfg}, nil
}

func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

func (m *Manager) UpdateConfig(update GlobalUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := m.snapshot()
	if update.MaxConcurrentTasks != nil {
		candidate.MaxConcurrentTasks = *update.MaxConcurrentTasks
	}
	if update.DefaultTimeout != nil {
		candidate.DefaultTimeout = *update.DefaultTimeout
	}
	if update.RetryDelay != nil {
		candidate.RetryDelay = *update.RetryDelay
	}

	if result := validate(&candidate); !result.Valid {
		return fmt.Errorf("invalid config update: %v", result.Errors)
	}
	m.cfg = candidate
	return nil
}

func (m *Manager) GetTaskConfig(taskType models.TaskType) (models.TaskConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.cfg.Tasks[taskType]
	if !ok {
		return models.TaskConfig{}, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return cfg, nil
}

func (m *Manager) UpdateTaskConfig(taskType models.TaskType, update TaskConfigUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := m.snapshot()
	cfg, ok := candidate.Tasks[taskType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}

	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	if update.Priority != nil {
		cfg.Priority = *update.Priority
	}
	if update.Schedule != nil {
		cfg.Schedule = *update.Schedule
	}
	if update.MaxRetries != nil {
		cfg.MaxRetries = *update.MaxRetries
	}
	if update.Timeout != nil {
		cfg.Timeout = *update.Timeout
	}
	if update.RetentionDays != nil {
		cfg.RetentionDays = *update.RetentionDays
	}
	if update.BatchSize != nil {
		cfg.BatchSize = *update.BatchSize
	}
	if update.DryRun != nil {
		cfg.DryRun = *update.DryRun
	}
	candidate.Tasks[taskType] = cfg

	if result := validate(&candidate); !result.Valid {
		return fmt.Errorf("invalid task config update: %v", result.Errors)
	}
	m.cfg = candidate
	return nil
}

func (m *Manager) EnableTask(taskType models.TaskType) error {
	enabled := true
	return m.UpdateTaskConfig(taskType, TaskConfigUpdate{Enabled: &enabled})
}

func (m *Manager) DisableTask(taskType models.TaskType) error {
	enabled := false
	return m.UpdateTaskConfig(taskType, TaskConfigUpdate{Enabled: &enabled})
}

func (m *Manager) ValidateConfig() ValidationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.snapshot()
	return validate(&cfg)
}

// ExportConfig serializes the live config as YAML.
func (m *Manager) ExportConfig() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out, err := yaml.Marshal(m.snapshot())
	if err != nil {
		return "", fmt.Errorf("export config: %w", err)
	}
	return string(out), nil
}

// ImportConfig parses and validates an external config. On any validation
// failure the previous config is retained untouched and the error list is
// returned.
func (m *Manager) ImportConfig(text string) ([]string, error) {
	candidate := Config{}
	if err := yaml.Unmarshal([]byte(text), &candidate); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if result := validate(&candidate); !result.Valid {
		return result.Errors, fmt.Errorf("imported config is invalid")
	}

	m.mu.Lock()
	m.cfg = candidate
	m.mu.Unlock()
	return nil, nil
}

func (m *Manager) snapshot() Config {
	cfg := m.cfg
	cfg.Tasks = make(map[models.TaskType]models.TaskConfig, len(m.cfg.Tasks))
	for taskType, taskCfg := range m.cfg.Tasks {
		cfg.Tasks[taskType] = taskCfg
	}
	return cfg
}

func validate(cfg *Config) ValidationResult {
	errs := make([]string, 0)

	if cfg.MaxConcurrentTasks <= 0 {
		errs = append(errs, "max_concurrent_tasks must be positive")
	}
	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, "default_timeout must be positive")
	}
	if cfg.StorageEndpoint == "" {
		errs = append(errs, "storage_endpoint must not be empty")
	}
	if cfg.StorageAccessKey == "" || cfg.StorageSecretKey == "" {
		errs = append(errs, "storage credentials must not be empty")
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, "database_url must not be empty")
	}

	for taskType, taskCfg := range cfg.Tasks {
		if !taskType.Valid() {
			errs = append(errs, fmt.Sprintf("task %s: unknown task type", taskType))
			continue
		}
		if taskCfg.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("task %s: timeout must be positive", taskType))
		}
		if taskCfg.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("task %s: max_retries must not be negative", taskType))
		}
		if taskCfg.Schedule != "" {
			if _, err := scheduleParser.Parse(taskCfg.Schedule); err != nil {
				errs = append(errs, fmt.Sprintf("task %s: invalid schedule %q: %v", taskType, taskCfg.Schedule, err))
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
