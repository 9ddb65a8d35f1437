// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foldershare/folderd/internal/components/api/folderapi"
	"github.com/foldershare/folderd/internal/components/api/inviteapi"
	"github.com/foldershare/folderd/internal/components/api/usersapi"
	"github.com/foldershare/folderd/internal/components/folders"
	"github.com/foldershare/folderd/internal/config"
	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// ErrMissingDep is returned by New when a required dependency is nil.
var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	Store   store.Driver
	Folders *folders.Service
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	deps       *Deps

	folderHandler *folderapi.Handler
	inviteHandler *inviteapi.Handler
	usersHandler  *usersapi.Handler
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if deps == nil || deps.Store == nil || deps.Folders == nil {
		return nil, ErrMissingDep
	}

	s := &Server{
		cfg:    cfg,
		logger: logutil.NoopIfNil(logger),
		deps:   deps,
	}
	s.folderHandler = folderapi.NewHandler(deps.Folders, s.currentUser, logger)
	s.inviteHandler = inviteapi.NewHandler(deps.Folders, s.currentUser, logger)
	s.usersHandler = usersapi.NewHandler(deps.Store, cfg.Security.BcryptCost, logger)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start begins serving. It blocks until the listener fails or is closed.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
