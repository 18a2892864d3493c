// Package webstats exposes the sensor's health, Prometheus metrics, and
// live store counts over HTTP, grounded on the teacher's
// internal/adapters/web/server.Server (graceful shutdown via context,
// otelhttp instrumentation) generalized to spec.md's out-of-scope "CLI/
// logging plumbing" ambient surface rather than the teacher's full
// dashboard/API.
package webstats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wisp-sensor/wisp/internal/store"
)

// Server serves /healthz, /metrics, and /stats.
type Server struct {
	Addr   string
	Store  *store.Store
	Logger *slog.Logger

	srv *http.Server
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.Store.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"devices":         stats.Devices,
		"access_points":   stats.APs,
		"current_channel": stats.Channel,
	})
}

// Run starts the server and blocks until ctx is cancelled, then performs a
// graceful shutdown with a 5-second deadline.
func (s *Server) Run(ctx context.Context) error {
	handler := otelhttp.NewHandler(s.routes(), "wisp-webstats")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Error("webstats shutdown error", "error", err)
		}
	}()

	s.Logger.Info("webstats listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
