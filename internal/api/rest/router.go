package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediakeep/sweeper/internal/api/rest/middleware"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS)

	r.Get("/health", s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metricsHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/running", s.taskHandler.HandleRunningTasks)
			r.Post("/batch", s.taskHandler.HandleExecuteBatch)
			r.Post("/{type}/execute", s.taskHandler.HandleExecuteTask)
			r.Post("/{type}/cancel", s.taskHandler.HandleCancelTask)
			r.Get("/{type}/estimate", s.taskHandler.HandleEstimate)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.configHandler.HandleGetConfig)
			r.Put("/", s.configHandler.HandleUpdateConfig)
			r.Get("/validate", s.configHandler.HandleValidateConfig)
			r.Get("/export", s.configHandler.HandleExportConfig)
			r.Post("/import", s.configHandler.HandleImportConfig)

			r.Route("/tasks/{type}", func(r chi.Router) {
				r.Get("/", s.configHandler.HandleGetTaskConfig)
				r.Put("/", s.configHandler.HandleUpdateTaskConfig)
				r.Post("/enable", s.configHandler.HandleEnableTask)
				r.Post("/disable", s.configHandler.HandleDisableTask)
			})
		})

		r.Get("/reports", s.reportHandler.HandleGenerateReport)
		r.Get("/reports/{type}", s.reportHandler.HandleTaskTypeReport)
		r.Get("/history", s.reportHandler.HandleHistory)
		r.Get("/stats", s.reportHandler.HandleStats)
	})

	return r
}
