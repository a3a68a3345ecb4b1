package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/QTest-hq/pytestify/internal/config"
	"github.com/QTest-hq/pytestify/internal/convert"
)

// Server represents the API server
type Server struct {
	cfg       *config.Config
	converter *convert.Converter
	router    *chi.Mux

	draining atomic.Bool
}

// NewServer creates a new API server. A nil project config uses the
// defaults.
func NewServer(cfg *config.Config, project *config.ProjectConfig) (*Server, error) {
	if project == nil {
		project = config.DefaultProjectConfig()
	}
	s := &Server{
		cfg:       cfg,
		converter: convert.NewConverter(convert.OptionsFromProject(project, cfg.RaiseErrors)),
		router:    chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Drain marks the server as shutting down. /ready reports 503 from then
// on so load balancers stop routing new requests to it.
func (s *Server) Drain() {
	s.draining.Store(true)
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(corsMiddleware)
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/convert", s.convertSource)
		r.Post("/diff", s.diffSource)
	})
}

// Health check handlers
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
