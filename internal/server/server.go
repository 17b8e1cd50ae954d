package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/nutriparse/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app         *app.App
	router      *http.ServeMux
	server      *http.Server
	rateLimiter *RateLimiter
	pruneStop   chan struct{}
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app:       application,
		pruneStop: make(chan struct{}),
	}

	if application.Config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(
			application.Config.RateLimit.PerMinute,
			application.Config.RateLimit.PerHour,
			application.Logger)
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.server.Addr

	s.app.Logger.Info().
		Str("address", addr).
		Msg("HTTP server starting")

	if s.rateLimiter != nil {
		go s.prunePeriodically()
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")
	close(s.pruneStop)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) prunePeriodically() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.pruneStop:
			return
		case <-ticker.C:
			s.rateLimiter.Prune()
		}
	}
}
