// Package api exposes the analytics read API and operational endpoints over
// HTTP.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/analytics"
	"github.com/kitsudo/anime-dashboard/internal/config"
)

// Server is the HTTP front end for the analytics service.
type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
	log      zerolog.Logger
}

// NewServer creates the API server. db and rdb are used only for health
// reporting; all reads go through the analytics service.
func NewServer(cfg config.ServerConfig, svc *analytics.Service, db *sql.DB, rdb *redis.Client, reg prometheus.Gatherer, log zerolog.Logger) *Server {
	handlers := NewHandlers(svc, db, rdb, log)
	router := SetupRoutes(handlers, reg)

	return &Server{
		cfg:      cfg,
		router:   router,
		handlers: handlers,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Start begins listening. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.cfg.Addr()).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info().Msg("api server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
