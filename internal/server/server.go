// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Server is the HTTP server for the kotae API.
type Server struct {
	router *router.Router
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server that delegates to rt.
func NewServer(rt *router.Router, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		router: rt,
		config: cfg,
		logger: utils.OrNop(logger),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	r.Route("/api/v1/users/{user}", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleUpload)
		r.Post("/select", s.handleSelect)
		r.Post("/finish", s.handleFinish)
		r.Post("/ask", s.handleAsk)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
