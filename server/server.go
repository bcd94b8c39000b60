// Package server exposes the poller's latest snapshot over a small
// read-only HTTP surface, plus health and metrics endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/grimsteel/smarttag-go/poller"
)

// SnapshotSource provides the latest poll result. Satisfied by
// *poller.Poller.
type SnapshotSource interface {
	Latest() (poller.Snapshot, bool)
}

// Server serves the status API. Handlers only ever read snapshots, so the
// serialize-per-client-instance rule stays with the poller.
type Server struct {
	mux       *http.ServeMux
	routes    []string
	source    SnapshotSource
	metrics   http.Handler
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts a /metrics route.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates the status server over the given snapshot source.
func New(source SnapshotSource, options ...Option) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		source:    source,
		startedAt: time.Now(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /healthz", s.HealthHandler())
	s.RegisterRouteFunc("GET /api/snapshot", s.SnapshotHandler())
	s.RegisterRouteFunc("GET /api/students", s.StudentsHandler())
	s.RegisterRouteFunc("GET /api/windows", s.WindowsHandler())
	s.RegisterRouteFunc("GET /api/rides", s.RidesHandler())
	if s.metrics != nil {
		s.RegisterRouteHandler("GET /metrics", s.metrics)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RegisterRouteHandler mounts a handler with the standard middleware chain.
func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.RegisterRouteFunc(pattern, handler.ServeHTTP)
}

// RegisterRouteFunc mounts a handler func with the standard middleware chain.
func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, ChainMiddleware(handler, s.LoggingMiddleware, s.RecoverMiddleware))
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered route")
	}
}
