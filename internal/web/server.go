// Package web exposes the grouping engine over a small JSON API so other
// tools on the local network can query a corpus without shelling out.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/imagesieve/imagesieve/internal/config"
)

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a web server serving the given handler dependencies.
func NewServer(cfg *config.Config, host string, port int, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // grouping a large corpus takes a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(deps Deps) {
	searchHandler := NewSearchHandler(deps)
	groupHandler := NewGroupHandler(deps)

	s.router.Get("/api/v1/health", HealthCheck)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", searchHandler.Search)
		r.Post("/group", groupHandler.Group)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
