package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theNullP0inter/odinmcp/internal/identity"
)

// Server is the web tier: the MCP endpoint behind its middleware chain,
// plus /health and /metrics.
type Server struct {
	transport       *Transport
	tokens          *identity.ChannelTokens
	userInfoHeader  string
	streamingHeader string

	addr          string
	factory       identity.Factory
	logger        *slog.Logger
	healthChecker *HealthChecker
	metrics       *Metrics
	server        *http.Server
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithUserFactory sets the factory that builds users from userinfo JSON.
func WithUserFactory(factory identity.Factory) ServerOption {
	return func(s *Server) { s.factory = factory }
}

// WithHealthChecker sets the /health checker.
func WithHealthChecker(hc *HealthChecker) ServerOption {
	return func(s *Server) { s.healthChecker = hc }
}

// NewServer assembles the web tier around a transport.
func NewServer(transport *Transport, tokens *identity.ChannelTokens, userInfoHeader, streamingHeader string, opts ...ServerOption) *Server {
	s := &Server{
		transport:       transport,
		tokens:          tokens,
		userInfoHeader:  userInfoHeader,
		streamingHeader: streamingHeader,
		addr:            "127.0.0.1:8080",
		factory:         identity.FromInfo,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full middleware chain and mux. Middleware order
// (outermost first): metrics, request id, Heimdall auth, Hermod streaming,
// transport.
func (s *Server) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(reg)

	var endpoint http.Handler = s.transport
	endpoint = HermodMiddleware(s.streamingHeader, s.tokens)(endpoint)
	endpoint = HeimdallMiddleware(s.userInfoHeader, s.factory)(endpoint)
	endpoint = RequestIDMiddleware(s.logger)(endpoint)
	endpoint = MetricsMiddleware(s.metrics)(endpoint)

	mux := http.NewServeMux()
	if s.healthChecker != nil {
		mux.Handle("/health", s.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", endpoint)
	return mux
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown drains in-flight requests with a bounded grace period.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
