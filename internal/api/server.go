// Package api provides the engine's health and readiness HTTP surface.
//
// The workflow engine is operated through the enginectl CLI and the
// in-process engine API; this package exposes only the liveness/readiness
// endpoints a scheduler or load balancer needs to supervise the process.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/config"
	"github.com/marketgrid/onboardengine/internal/database"
	"github.com/marketgrid/onboardengine/internal/logger"
)

// Server represents the HTTP health/ready server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	provider database.Provider
	recovery RecoveryHealthChecker
	logger   *zap.Logger
}

// RecoveryHealthChecker reports whether the background recovery loop is
// accepting work. It does not measure projection lag.
type RecoveryHealthChecker interface {
	IsReady() bool
}

// New creates a new HTTP health/ready server.
func New(cfg *config.HTTPConfig, dbProvider database.Provider, log *zap.Logger) *Server {
	log = log.With(zap.String("component", "api"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log))
	r.Use(logger.CorrelationIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		router:   r,
		provider: dbProvider,
		recovery: nil, // set later with SetRecoveryChecker()
		logger:   log,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	srv.registerRoutes()

	return srv
}

// SetRecoveryChecker wires the recovery loop's readiness into the /ready endpoint.
func (s *Server) SetRecoveryChecker(checker RecoveryHealthChecker) {
	s.recovery = checker
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
}

// handleHealth is the liveness check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleReady is the readiness check endpoint. It reports unavailable if the
// database is unreachable or the recovery checker reports not ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := make(map[string]string)

	if err := s.provider.Health(ctx); err != nil {
		s.logger.Warn("readiness check failed: database unhealthy", zap.Error(err))
		checks["database"] = "unhealthy"
		s.writeReadyResponse(w, http.StatusServiceUnavailable, "unavailable", checks, err)
		return
	}
	checks["database"] = "healthy"

	if s.recovery != nil {
		if s.recovery.IsReady() {
			checks["recovery"] = "ready"
		} else {
			checks["recovery"] = "not_ready"
			s.writeReadyResponse(w, http.StatusServiceUnavailable, "unavailable", checks, nil)
			return
		}
	}

	s.writeReadyResponse(w, http.StatusOK, "ready", checks, nil)
}

func (s *Server) writeReadyResponse(w http.ResponseWriter, status int, state string, checks map[string]string, err error) {
	response := map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server shut down successfully")
	return nil
}
