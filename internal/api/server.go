// Package api provides the HTTP REST surface over the identity,
// authorization and audit core.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/infrastructure/config"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
	"github.com/Amchik/archk/internal/service"
	"github.com/Amchik/archk/internal/space"
	"github.com/Amchik/archk/internal/token"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	DB       *database.DB
	Identity *identity.Service
	Tokens   *token.Authority
	Authz    *authz.Resolver
	Roles    *roles.Table
	Registry *space.Registry
	Services *service.Manager
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *database.DB
	identity *identity.Service
	tokens   *token.Authority
	authz    *authz.Resolver
	roles    *roles.Table
	registry *space.Registry
	services *service.Manager
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Identity == nil || deps.Tokens == nil || deps.Registry == nil || deps.Services == nil {
		return nil, fmt.Errorf("core services are required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger.With("component", "api"),
		db:       deps.DB,
		identity: deps.Identity,
		tokens:   deps.Tokens,
		authz:    deps.Authz,
		roles:    deps.Roles,
		registry: deps.Registry,
		services: deps.Services,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to ten seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// handleHealth returns the server health status, including database
// reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
