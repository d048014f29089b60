package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/track"
)

// StatsSource supplies the live performance report for the /stats
// endpoint. Satisfied by *track.Tracker.
type StatsSource interface {
	Stats() track.Stats
}

// Server exposes health, Prometheus metrics, and the performance report
// over HTTP.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

func NewServer(addr string, registry *Registry, stats StatsSource, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "monitor").Logger()

	router := mux.NewRouter()
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/stats", handleStats(stats, logger)).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("monitor server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func handleStats(stats StatsSource, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats.Stats()); err != nil {
			logger.Error().Err(err).Msg("failed to encode stats")
		}
	}
}
