package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

// Timeouts for the observability listener. Scrapes and probes are small, so
// these stay short.
const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 10 * time.Second
	serverWriteTimeout      = 10 * time.Second
	serverIdleTimeout       = 120 * time.Second
	serverShutdownTimeout   = 5 * time.Second

	// serverMaxConns caps concurrent scrape and probe connections.
	serverMaxConns = 64
)

// Server exposes /metrics, /health, /healthz and /readyz for a bus or
// ground station process.
type Server struct {
	mux    *http.ServeMux
	health *HealthCheck
}

// ServerConfig configures the observability server.
type ServerConfig struct {
	Collector        *Collector // default Global()
	Version          string
	Namespace        string // Prometheus namespace (default "satcom")
	EnablePrometheus bool
	EnableHealth     bool
}

// NewServer registers the enabled routes. Nothing listens until Run or
// Serve.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "satcom"
	}

	s := &Server{mux: http.NewServeMux()}
	if cfg.EnablePrometheus {
		s.mux.Handle("/metrics", NewPrometheusExporter(cfg.Collector, cfg.Namespace).Handler())
	}
	if cfg.EnableHealth {
		s.health = NewHealthCheck(cfg.Collector, cfg.Version)
		s.mux.Handle("/health", s.health.Handler())
		s.mux.Handle("/healthz", s.health.LivenessHandler())
		s.mux.Handle("/readyz", s.health.ReadinessHandler())
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// AddHealthCheck registers a named check. It is a no-op when health
// endpoints are disabled.
func (s *Server) AddHealthCheck(name string, check CheckFunc) {
	if s.health != nil {
		s.health.AddCheck(name, check)
	}
}

// Run binds addr and serves until ctx is cancelled. A bind failure is
// returned immediately.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// returns nil. At most serverMaxConns connections are served at once. ln is
// closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, serverMaxConns)
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-done
	return err
}
