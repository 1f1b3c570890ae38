package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/zring/cfbmodel/internal/api/handlers"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	systemHandler := handlers.NewSystemHandler(s.svc, s.svc.Metrics())

	s.router.Get("/health", systemHandler.Health)
	s.router.Get("/ws", s.hub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", systemHandler.GetMetrics)

		modelHandler := handlers.NewModelHandler(s.svc)
		r.Get("/model", modelHandler.GetModel)

		predictionHandler := handlers.NewPredictionHandler(s)
		r.Post("/predictions", predictionHandler.CreatePrediction)

		if s.runs == nil {
			return
		}
		runHandler := handlers.NewRunHandler(s.runs)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runHandler.ListRuns)
			r.Get("/latest", runHandler.GetLatestRun)
			r.Get("/{runID}", runHandler.GetRun)
			r.Get("/{runID}/analysis", runHandler.GetRunAnalysis)
			r.Delete("/{runID}", runHandler.DeleteRun)
		})
	})
}
