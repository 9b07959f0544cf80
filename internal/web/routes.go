package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/handlers"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	sessionHandler := handlers.NewSessionHandler(s.sessionManager, s.jobManager)
	imagesHandler := handlers.NewImagesHandler(s.jobManager, s.deps.Prober, s.deps.Moderator, ingest.Options{
		MaxCount:   s.config.Ingest.MaxCount,
		MaxSize:    s.config.Ingest.MaxSize,
		Extensions: s.config.Ingest.Extensions,
	})
	jobsHandler := handlers.NewJobsHandler(s.jobManager)
	generateHandler := handlers.NewGenerateHandler(s.deps.Compositor, s.outputs)
	outputHandler := handlers.NewOutputHandler(s.outputs, s.deps.Sink)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		r.Post("/sessions", sessionHandler.Create)
		r.Delete("/sessions/{id}", sessionHandler.Delete)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessionManager))

			r.Get("/sessions/{id}", sessionHandler.Get)
			r.Post("/sessions/{id}/images", imagesHandler.Upload)
			r.Delete("/sessions/{id}/images", imagesHandler.Clear)
			r.Delete("/sessions/{id}/images/{index}", imagesHandler.Remove)
			r.Put("/sessions/{id}/crop", sessionHandler.Crop)
			r.Get("/sessions/{id}/plan", sessionHandler.Plan)
			r.Post("/sessions/{id}/generate", generateHandler.Generate)
		})

		r.Get("/jobs/{jobId}", jobsHandler.Get)
		r.Get("/jobs/{jobId}/events", jobsHandler.Events)
		r.Delete("/jobs/{jobId}", jobsHandler.Cancel)

		r.Get("/outputs/{id}", outputHandler.Get)
		r.Post("/outputs/{id}/save", outputHandler.Save)
	})
}
