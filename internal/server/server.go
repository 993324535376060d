// Package server exposes the worker status API: health, backend
// descriptors, harvest statistics and a websocket stream of job events.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/metrics"
)

// Server serves the status API.
type Server struct {
	version  string
	registry *backend.Registry
	runner   *harvest.Runner
	metrics  *metrics.Collector
	hub      *Hub
	logger   *slog.Logger
}

// New creates a server. runner and collector may be nil.
func New(version string, registry *backend.Registry, runner *harvest.Runner, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		version:  version,
		registry: registry,
		runner:   runner,
		metrics:  collector,
		logger:   logger,
	}
}

// WithEvents serves the hub's job events on GET /events.
func (s *Server) WithEvents(h *Hub) *Server {
	s.hub = h
	return s
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /backends", s.backends)
	mux.HandleFunc("GET /stats", s.stats)
	if s.hub != nil {
		mux.HandleFunc("GET /events", s.events)
	}
	return LoggingMiddleware(s.logger)(mux)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) backends(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Infos())
}

type activeRun struct {
	SourceID  string    `json:"source_id"`
	Slug      string    `json:"slug"`
	StartedAt time.Time `json:"started_at"`
}

type statsResponse struct {
	metrics.Snapshot
	Active []activeRun `json:"active"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Active: []activeRun{}}
	if s.metrics != nil {
		resp.Snapshot = s.metrics.Snapshot()
	}
	if s.runner != nil {
		for _, r := range s.runner.Active() {
			resp.Active = append(resp.Active, activeRun{SourceID: r.SourceID, Slug: r.Slug, StartedAt: r.StartedAt})
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
