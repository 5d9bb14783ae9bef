// Package server provides the HTTP and WebSocket front end of the pose game.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/metrics"
	"github.com/ayusman/asana/internal/server/api"
	"github.com/ayusman/asana/internal/store"
)

// PosePath is the WebSocket endpoint for landmark frames.
const PosePath = "/ws/pose_data/"

// Config holds the server configuration.
type Config struct {
	StaticDir    string
	Store        *store.Store
	Orchestrator *app.Orchestrator
	WS           WSConfig
	Logger       logrus.FieldLogger
}

// Server represents the HTTP server for the pose game.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Logger,
	}
	if config.Orchestrator != nil {
		s.metrics = config.Orchestrator.Metrics()
	} else {
		s.metrics = metrics.New()
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/metrics", s.handleMetrics)

	if s.config.Store != nil {
		s.mux.Handle("/api/scores", api.NewScoreHandler(s.config.Store, s.log))
		s.mux.Handle("/api/holds", api.NewHoldHandler(s.config.Store, s.log))
	}

	if s.config.Orchestrator != nil {
		s.mux.Handle(PosePath, NewPoseHandler(s.config.Orchestrator, s.config.WS, s.metrics, s.log))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	classifier := app.ClassifierUnknown
	active := 0
	if o := s.config.Orchestrator; o != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		classifier = o.ClassifierStatus(ctx)
		active = o.ActiveSessions()
	}

	response := map[string]interface{}{
		"status":          "ok",
		"uptime":          time.Since(s.start).String(),
		"active_sessions": active,
		"classifier":      classifier,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleMetrics handles GET requests to /api/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.metrics.Snapshot()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// HTTPServer wraps the handler in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return s.HTTPServer(addr).ListenAndServe()
}
