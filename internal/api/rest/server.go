package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediakeep/sweeper/internal/api/rest/handlers"
	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/executor"
	"github.com/mediakeep/sweeper/internal/report"
	"github.com/mediakeep/sweeper/internal/taskman"
)

type Server struct {
	httpServer *http.Server

	taskHandler   *handlers.TaskHandler
	configHandler *handlers.ConfigHandler
	reportHandler *handlers.ReportHandler
	healthHandler *handlers.HealthHandler
	metricsHTTP   http.Handler
}

func NewServer(
	exec *executor.Executor,
	cfg *config.Manager,
	manager *taskman.Manager,
	reporter *report.Reporter,
	registry *prometheus.Registry,
	host string,
	port int,
) *Server {
	s := &Server{
		taskHandler:   handlers.NewTaskHandler(exec, manager),
		configHandler: handlers.NewConfigHandler(cfg),
		reportHandler: handlers.NewReportHandler(reporter, manager),
		healthHandler: handlers.NewHealthHandler(),
		metricsHTTP:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	slog.Info("starting REST server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("REST server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down REST server")
	return s.httpServer.Shutdown(ctx)
}
