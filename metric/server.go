package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catcatai/hsp/errors"
)

// Server exposes the metrics registry over HTTP, plus /healthz when a
// health handler is attached.
type Server struct {
	addr     string
	path     string
	registry *Registry
	health   http.Handler

	mu     sync.Mutex
	server *http.Server
}

// WithHealthHandler attaches a handler served at /healthz. Must be
// called before Start.
func (s *Server) WithHealthHandler(h http.Handler) *Server {
	s.health = h
	return s
}

// NewServer creates a metrics server. Defaults: path "/metrics",
// addr ":9464".
func NewServer(addr, path string, registry *Registry) *Server {
	if addr == "" {
		addr = ":9464"
	}
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path, registry: registry}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "running check")
	}
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingDependency, "Server", "Start", "registry check")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.health != nil {
		mux.Handle("/healthz", s.health)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// A metrics listener failure should not take the node down.
			slog.Error("metrics server stopped", "error", err)
		}
	}(s.server)

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.server = nil
	return err
}
