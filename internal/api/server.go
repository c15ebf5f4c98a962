// Package api wires the dashboard handlers into an HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/bleedingdev/salesdash/internal/api/handlers/dashboard"
	"github.com/bleedingdev/salesdash/internal/api/middleware"
	"github.com/bleedingdev/salesdash/internal/config"
	"github.com/bleedingdev/salesdash/internal/logging"
	"github.com/bleedingdev/salesdash/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Server is the dashboard HTTP server.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
}

// NewServer builds the router with logging, recovery, the localhost guard and the
// upload limit installed ahead of the dashboard routes.
func NewServer(cfg *config.Config, sessions *session.Manager, loader dashboard.Loader) *Server {
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.LocalhostOnly(cfg.Dashboard.AllowRemote))
	engine.Use(middleware.BodyLimit(cfg.Dashboard.MaxUploadBytes))

	dashboard.RegisterRoutes(engine, dashboard.NewHandler(sessions, loader))
	return &Server{cfg: cfg, engine: engine}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight
// requests. At most Dashboard.MaxConnections connections are served at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if limit := s.cfg.Dashboard.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.WithFields(log.Fields{
		"addr":            ln.Addr().String(),
		"max_connections": s.cfg.Dashboard.MaxConnections,
		"allow_remote":    s.cfg.Dashboard.AllowRemote,
	}).Info("Dashboard API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("Dashboard API stopped")
	return nil
}
