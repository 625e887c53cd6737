package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the router. Analytics endpoints live under
// /api/analytics; /health and /metrics are unversioned operational surface.
func SetupRoutes(h *Handlers, reg prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/stats/overview", h.Overview)
		r.Get("/anime/top-rated", h.TopRated)
		r.Get("/anime/genre-distribution", h.GenreDistribution)
		r.Get("/trends/seasonal", h.SeasonalTrends)
	})

	return r
}
