package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Show library and playback
		r.Route("/shows", func(r chi.Router) {
			r.Get("/", s.handleListShows)
			r.Post("/reload", s.handleReloadShows)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetShow)
				r.Post("/play", s.handlePlayShow)
				r.Post("/stop", s.handleStopShow)
			})
		})

		// Running instances
		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.handleListInstances)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/pause", s.handlePauseInstance)
				r.Post("/resume", s.handleResumeInstance)
				r.Post("/stop", s.handleStopInstance)
				r.Post("/advance", s.handleAdvanceInstance)
			})
		})

		// Playlists
		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)

			r.Route("/{name}", func(r chi.Router) {
				r.Post("/start", s.handleStartPlaylist)
				r.Post("/stop", s.handleStopPlaylist)
			})
		})

		// Execution history
		r.Get("/executions", s.handleListExecutions)
	})

	return r
}
