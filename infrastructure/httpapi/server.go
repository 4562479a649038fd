// Package httpapi exposes the generation service and document store over a
// JSON HTTP API. Handlers are a thin mapping layer; all behavior lives in
// the application services.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// GenerationService is the application surface the API exposes.
type GenerationService interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)
	Regenerate(ctx context.Context, documentID string, improvements []string) (*domain.GenerationResponse, error)
}

// Server routes HTTP requests to the generation service and the document
// store.
type Server struct {
	service   GenerationService
	repo      ports.DocumentRepository
	validator ports.DocumentValidator
	logger    zerolog.Logger
	router    *chi.Mux
}

// ServerOption customizes a server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer wires the routes and returns a ready server.
func NewServer(service GenerationService, repo ports.DocumentRepository, validator ports.DocumentValidator, opts ...ServerOption) *Server {
	s := &Server{
		service:   service,
		repo:      repo,
		validator: validator,
		logger:    zerolog.Nop(),
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	// Generation calls block on provider round-trips, so the budget is
	// generous.
	s.router.Use(middleware.Timeout(10 * time.Minute))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/generate", s.generate)
		r.Post("/regenerate/{documentID}", s.regenerate)
		r.Post("/validate/{documentID}", s.validate)

		r.Get("/documents", s.listDocuments)
		r.Get("/documents/{documentID}", s.getDocument)
		r.Delete("/documents/{documentID}", s.deleteDocument)
		r.Get("/search", s.searchDocuments)
		r.Get("/history/{documentID}", s.getHistory)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
