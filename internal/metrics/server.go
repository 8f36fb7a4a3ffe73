package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediafab/vidforge/internal/log"
)

// Server exposes /metrics and /healthz on a dedicated listener. It is only
// started when a metrics address is configured; single-shot CLI runs skip it.
type Server struct {
	addr    string
	version string
	srv     *http.Server
}

// NewServer creates a metrics server bound to addr (e.g. ":9090").
func NewServer(addr, version string) *Server {
	return &Server{addr: addr, version: version}
}

// Run starts the listener and blocks until ctx is cancelled or the server
// fails. Shutdown is bounded so a stuck scrape cannot stall process exit.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponent("metrics")

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", s.addr).
			Str("event", "metrics.server.listening").
			Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Error().Err(err).Str("event", "metrics.server.failed").Msg("metrics server failed")
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
