package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves the /metrics endpoint for prometheus scraping.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a metrics server on the given port. It exposes only the
// /metrics endpoint, gathering from the default prometheus registry.
func NewServer(log zerolog.Logger, port uint) *Server {
	addr := ":" + strconv.Itoa(int(port))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		log:    log.With().Str("component", "metrics_server").Str("address", addr).Logger(),
	}
}

// Ready starts the server and returns a channel that closes once it is
// listening.
func (s *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		err := s.server.ListenAndServe()
		// ErrServerClosed is returned on a clean Shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		s.log.Info().Msg("metrics server started")
		close(ready)
	}()
	return ready
}

// Done shuts the server down and returns a channel that closes when shutdown
// is complete.
func (s *Server) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
		close(done)
	}()
	return done
}
