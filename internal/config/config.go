package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// ServiceConfig is the startup configuration, consumed once from the
// environment when the orchestrator boots.
type ServiceConfig struct {
	DBURL string `env:"SWEEPER_DB_URL,required"`

	StorageEndpoint  string `env:"SWEEPER_STORAGE_ENDPOINT,required"`
	StorageAccessKey string `env:"SWEEPER_STORAGE_ACCESS_KEY,required"`
	StorageSecretKey string `env:"SWEEPER_STORAGE_SECRET_KEY,required"`
	StorageBucket    string `env:"SWEEPER_STORAGE_BUCKET" envDefault:"media"`
	StorageUseSSL    bool   `env:"SWEEPER_STORAGE_USE_SSL" envDefault:"true"`

	RedisAddr     string `env:"SWEEPER_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"SWEEPER_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"SWEEPER_REDIS_DB" envDefault:"0"`

	RESTHost string `env:"SWEEPER_REST_HOST" envDefault:"0.0.0.0"`
	RESTPort int    `env:"SWEEPER_REST_PORT" envDefault:"8080"`

	MaxConcurrentTasks int           `env:"SWEEPER_MAX_CONCURRENT_TASKS" envDefault:"2"`
	DefaultTimeout     time.Duration `env:"SWEEPER_DEFAULT_TIMEOUT" envDefault:"10m"`
	RetryDelay         time.Duration `env:"SWEEPER_RETRY_DELAY" envDefault:"5m"`
	HistoryLimit       int           `env:"SWEEPER_HISTORY_LIMIT" envDefault:"1000"`

	SchedulerEnabled bool          `env:"SWEEPER_SCHEDULER_ENABLED" envDefault:"true"`
	WatchdogInterval time.Duration `env:"SWEEPER_WATCHDOG_INTERVAL" envDefault:"1m"`
	WatchdogGrace    time.Duration `env:"SWEEPER_WATCHDOG_GRACE" envDefault:"30s"`

	LogDir string `env:"SWEEPER_LOG_DIR" envDefault:"/var/log/sweeper"`

	DBMaxOpenConns    int           `env:"SWEEPER_DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"SWEEPER_DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"SWEEPER_DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"SWEEPER_DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`

	LogLevel  string `env:"SWEEPER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SWEEPER_LOG_FORMAT" envDefault:"json"`
}

func LoadServiceConfig() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse service config: %w", err)
	}
	return cfg, nil
}
