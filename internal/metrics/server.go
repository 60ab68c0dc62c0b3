package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// MetricsEndpoint is where the Prometheus handler is mounted.
const MetricsEndpoint = "/metrics"

// Server is the telemetry HTTP listener. It always serves /metrics; other
// handlers (the bus observer) attach through route functions.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer builds a server for addr. Each route function registers extra
// handlers on the shared mux.
func NewServer(addr string, routes ...func(*http.ServeMux)) *Server {
	mux := http.NewServeMux()
	mux.Handle(MetricsEndpoint, promhttp.Handler())
	for _, r := range routes {
		r(mux)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Info().Str("addr", ln.Addr().String()).Msg("telemetry server listening")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("telemetry server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
