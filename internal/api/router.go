package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/hlsgrabba/internal/api/handler"
	mw "github.com/iconidentify/hlsgrabba/internal/api/middleware"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Health   *handler.HealthHandler
	Jobs     *handler.JobHandler
	Queue    *handler.QueueHandler
	Events   *handler.EventHandler
	Settings *handler.SettingsHandler
	History  *handler.HistoryHandler
	Quality  *handler.QualityHandler
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// The event stream is long-lived and must not be cut by the timeout.
		r.Get("/events/stream", h.Events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Get("/stats", h.Health.Stats)

			r.Post("/jobs", h.Jobs.Add)
			r.Get("/jobs", h.Jobs.List)
			r.Get("/jobs/{jobID}", h.Jobs.Get)
			r.Delete("/jobs/{jobID}", h.Jobs.Delete)
			r.Post("/jobs/{jobID}/stop", h.Jobs.Stop)
			r.Post("/jobs/{jobID}/requeue", h.Jobs.Requeue)

			r.Post("/queue/start", h.Queue.Start)
			r.Post("/queue/stop", h.Queue.Stop)
			r.Get("/queue/status", h.Queue.Status)
			r.Post("/queue/save", h.Queue.Save)

			r.Get("/events", h.Events.List)
			r.Get("/events/recent", h.Events.Recent)
			r.Get("/events/stats", h.Events.Stats)
			r.Get("/events/types", h.Events.Types)

			r.Get("/history", h.History.List)

			r.Get("/settings", h.Settings.Get)
			r.Put("/settings", h.Settings.Update)

			r.Post("/qualities", h.Quality.Discover)
		})
	})

	return r
}
