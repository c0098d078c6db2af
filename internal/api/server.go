package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/homequest/homequest-notify/internal/api/handler"
	"github.com/homequest/homequest-notify/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Preferences
		r.Get("/preferences/{ownerID}", h.ListPreferences)
		r.Put("/preferences/{ownerID}", h.PutPreference)
		r.Post("/preferences/{ownerID}/provision", h.ProvisionOwner)

		// Domain events
		r.Post("/events", h.IngestEvent)

		// Notifications
		r.Post("/notifications/send", h.SendCustom)
		r.Get("/notifications/user/{userID}", h.ListNotifications)
		r.Post("/notifications/{id}/delivered", h.MarkDelivered)
		r.Post("/notifications/{id}/read", h.MarkRead)
		r.Post("/notifications/{id}/cancel", h.CancelNotification)

		// Stats
		r.Get("/stats", h.GetStats)
	})

	return r
}
