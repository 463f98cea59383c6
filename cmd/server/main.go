package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediakeep/sweeper/internal/api/rest"
	"github.com/mediakeep/sweeper/internal/cache/redis"
	"github.com/mediakeep/sweeper/internal/cleanup"
	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/db/postgres"
	"github.com/mediakeep/sweeper/internal/executor"
	"github.com/mediakeep/sweeper/internal/metrics"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/monitor"
	"github.com/mediakeep/sweeper/internal/report"
	"github.com/mediakeep/sweeper/internal/scheduler"
	"github.com/mediakeep/sweeper/internal/storage/minio"
	"github.com/mediakeep/sweeper/internal/taskman"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(svcCfg.LogLevel, svcCfg.LogFormat)

	slog.Info("starting sweeper service")

	if err := runMigrations(svcCfg.DBURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	database, err := postgres.New(
		svcCfg.DBURL,
		svcCfg.DBMaxOpenConns,
		svcCfg.DBMaxIdleConns,
		svcCfg.DBConnMaxLifetime,
		svcCfg.DBConnMaxIdleTime,
	)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("database connected")

	store, err := minio.New(
		svcCfg.StorageEndpoint,
		svcCfg.StorageAccessKey,
		svcCfg.StorageSecretKey,
		svcCfg.StorageBucket,
		svcCfg.StorageUseSSL,
	)
	if err != nil {
		return fmt.Errorf("connect to object storage: %w", err)
	}

	cacheClient, err := redis.New(svcCfg.RedisAddr, svcCfg.RedisPassword, svcCfg.RedisDB)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer cacheClient.Close()

	cfgManager, err := config.NewManager(config.DefaultConfig(svcCfg))
	if err != nil {
		return fmt.Errorf("build runtime config: %w", err)
	}

	compensationRetries := config.DefaultTaskConfigs()[models.TaskTypeExpiredTransactions].MaxRetries

	handlers := executor.Handlers{
		Files:    cleanup.NewFileCleanup(store, database, database, database),
		Database: cleanup.NewDatabaseCleanup(database, database, database, database, database, store, compensationRetries),
		Cache:    cleanup.NewCacheCleanup(cacheClient),
		Logs:     cleanup.NewLogCleanup(svcCfg.LogDir),
	}

	manager := taskman.NewManager(svcCfg.HistoryLimit)

	registry := prometheus.NewRegistry()
	taskMetrics := metrics.New(registry)

	exec := executor.New(cfgManager, handlers, manager, taskMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(cfgManager, exec)
	if svcCfg.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	watchdog := monitor.NewWatchdog(cfgManager, manager, svcCfg.WatchdogInterval, svcCfg.WatchdogGrace)
	go watchdog.Start(ctx)

	reporter := report.NewReporter(manager, sched)

	restServer := rest.NewServer(exec, cfgManager, manager, reporter, registry, svcCfg.RESTHost, svcCfg.RESTPort)
	go func() {
		if err := restServer.Start(); err != nil {
			slog.Error("rest server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	slog.Info("shutdown signal received, stopping gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("rest server shutdown failed", "error", err)
	}

	if svcCfg.SchedulerEnabled {
		sched.Stop()
	}

	cancel()

	slog.Info("shutdown complete")
	return nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}

	slog.Info("database migrations completed")
	return nil
}

func setupLogging(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	slog.SetDefault(slog.New(handler))
}
