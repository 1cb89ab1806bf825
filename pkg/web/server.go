// Package web exposes the tracker over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/tracker"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server represents the web server
type Server struct {
	tracker      *tracker.Tracker
	router       *chi.Mux
	httpServer   *http.Server
	maxBodyBytes int64
}

// NewServer creates a new web server for t.
func NewServer(cfg *config.Config, t *tracker.Tracker) *Server {
	r := chi.NewRouter()

	s := &Server{
		tracker:      t,
		router:       r,
		maxBodyBytes: cfg.Server.MaxBodyBytes,
	}

	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(timeout))
	r.Use(cors)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", s.enroll)
		r.Post("/recognize", s.recognize)
		r.Post("/process_frame", s.recognize)

		r.Get("/roster", s.listRoster)
		r.Delete("/roster/{name}", s.removeIdentity)

		r.Get("/attendance", s.listAttendance)
		r.Get("/attendance/{name}", s.identityAttendance)
		r.Delete("/attendance", s.clearAttendance)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.Infof("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
