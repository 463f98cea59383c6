package config

import (
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

// DefaultTaskConfigs returns the built-in policy for every task type.
func DefaultTaskConfigs() map[models.TaskType]models.TaskConfig {
	return map[models.TaskType]models.TaskConfig{
		models.TaskTypeOrphanFiles: {
			Enabled:       true,
			Priority:      models.PriorityHigh,
			Schedule:      "0 3 * * *",
			MaxRetries:    3,
			Timeout:       30 * time.Minute,
			RetentionDays: 7,
			BatchSize:     100,
		},
		models.TaskTypeExpiredTransactions: {
			Enabled:       true,
			Priority:      models.PriorityHigh,
			Schedule:      "*/30 * * * *",
			MaxRetries:    3,
			Timeout:       10 * time.Minute,
			RetentionDays: 1,
			BatchSize:     50,
		},
		models.TaskTypeTempFiles: {
			Enabled:       true,
			Priority:      models.PriorityMedium,
			Schedule:      "0 * * * *",
			MaxRetries:    2,
			Timeout:       15 * time.Minute,
			RetentionDays: 1,
			BatchSize:     200,
		},
		models.TaskTypeLogCleanup: {
			Enabled:       true,
			Priority:      models.PriorityLow,
			Schedule:      "0 4 * * 0",
			MaxRetries:    2,
			Timeout:       20 * time.Minute,
			RetentionDays: 30,
			BatchSize:     100,
		},
		models.TaskTypeCacheCleanup: {
			Enabled:       true,
			Priority:      models.PriorityMedium,
			Schedule:      "15 * * * *",
			MaxRetries:    2,
			Timeout:       5 * time.Minute,
			RetentionDays: 1,
			BatchSize:     500,
		},
		models.TaskTypeDatabaseOptimization: {
			Enabled:       false,
			Priority:      models.PriorityLow,
			Schedule:      "0 5 * * 0",
			MaxRetries:    1,
			Timeout:       60 * time.Minute,
			RetentionDays: 90,
			BatchSize:     1000,
		},
		models.TaskTypeStorageCleanup: {
			Enabled:       true,
			Priority:      models.PriorityMedium,
			Schedule:      "30 2 * * *",
			MaxRetries:    3,
			Timeout:       30 * time.Minute,
			RetentionDays: 1,
			BatchSize:     100,
		},
		models.TaskTypeSessionCleanup: {
			Enabled:       true,
			Priority:      models.PriorityMedium,
			Schedule:      "45 * * * *",
			MaxRetries:    2,
			Timeout:       5 * time.Minute,
			RetentionDays: 1,
			BatchSize:     500,
		},
	}
}

// DefaultConfig builds the initial runtime config from the startup
// environment.
func DefaultConfig(svc *ServiceConfig) Config {
	return Config{
		MaxConcurrentTasks: svc.MaxConcurrentTasks,
		DefaultTimeout:     svc.DefaultTimeout,
		RetryDelay:         svc.RetryDelay,
		StorageEndpoint:    svc.StorageEndpoint,
		StorageAccessKey:   svc.StorageAccessKey,
		StorageSecretKey:   svc.StorageSecretKey,
		StorageBucket:      svc.StorageBucket,
		DatabaseURL:        svc.DBURL,
		Tasks:              DefaultTaskConfigs(),
	}
}
