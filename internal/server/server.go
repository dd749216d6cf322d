// Package server provides the HTTP API for imgdedup.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/imgdedup/internal/cache"
	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/hyperjump/imgdedup/internal/dedup"
	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/scan"
	"go.uber.org/zap"
)

// Runner executes a deduplication run.
type Runner interface {
	Run(ctx context.Context, req dedup.Request) (*models.Result, error)
}

// CacheInspector reports on the embedding cache.
type CacheInspector interface {
	Status(ctx context.Context) (*cache.Status, error)
}

// Server is the HTTP server for the imgdedup API.
type Server struct {
	runner  Runner
	cache   CacheInspector
	scan    scan.Options
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	timeout time.Duration
}

// NewServer creates a server with the given dependencies. scanOpts controls
// how request directories are listed.
func NewServer(
	runner Runner,
	inspector CacheInspector,
	scanOpts scan.Options,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		runner:  runner,
		cache:   inspector,
		scan:    scanOpts,
		config:  cfg,
		logger:  logger,
		timeout: 30 * time.Minute,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/dedupe", s.handleDedupe)
		r.Get("/cache", s.handleCacheStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
