// SPDX-License-Identifier: MIT

// Package ops serves the operational HTTP surface: health, pipeline status
// and Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/version"
)

// Server is the ops endpoint.
type Server struct {
	Store  *store.Store
	Listen string
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger := log.WithComponent("ops")
	logger.Info().Str("listen", s.Listen).Msg("ops server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Store.SummaryStatistics(r.Context())
	if err != nil {
		logger := log.WithComponent("ops")
		logger.Error().Err(err).Msg("summary query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("ops")
		logger.Warn().Err(err).Msg("response encode failed")
	}
}
