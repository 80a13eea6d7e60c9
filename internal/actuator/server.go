// Package actuator serves the operational HTTP surface: Prometheus metrics
// and the liveness and readiness probes. Every route is also mounted under
// /actuator for platforms that probe the Spring-style paths.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/navikt/aap-inntekt/pkg/config"
	"github.com/navikt/aap-inntekt/pkg/health"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/navikt/aap-inntekt/pkg/middleware"
)

const (
	PathMetrics = "/metrics"
	PathLive    = "/live"
	PathReady   = "/ready"
	aliasPrefix = "/actuator"
)

// Handler builds the actuator routes wrapped in request metrics.
func Handler(m *metrics.Metrics, checker *health.Checker) http.Handler {
	routes := map[string]http.Handler{
		PathMetrics: m.Handler(),
		PathLive:    checker.LiveHandler(),
		PathReady:   checker.ReadyHandler(),
	}
	mux := http.NewServeMux()
	known := make([]string, 0, 2*len(routes))
	for path, h := range routes {
		mux.Handle("GET "+path, h)
		mux.Handle("GET "+aliasPrefix+path, h)
		known = append(known, path, aliasPrefix+path)
	}
	return middleware.Metrics(m, known...)(mux)
}

// Server is the actuator HTTP server.
type Server struct {
	srv    *http.Server
	cfg    config.ServerConfig
	logger *slog.Logger
}

func NewServer(cfg config.ServerConfig, m *metrics.Metrics, checker *health.Checker) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      Handler(m, checker),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: slog.Default().With("component", "actuator"),
	}
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("actuator listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("actuator server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured port.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("actuator listen: %w", err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.srv.Shutdown(ctx)
}
