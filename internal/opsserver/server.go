// Package opsserver serves health, metrics and debug endpoints on a
// separate listener from the workflow transports.
package opsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sumire/recursiveflow/internal/domain"
	"github.com/sumire/recursiveflow/internal/metrics"
)

// JobLister lists job snapshots.
type JobLister interface {
	List(ctx context.Context) []domain.JobContext
}

// NewRouter builds the ops router.
func NewRouter(gatherer prometheus.Gatherer, jobs JobLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/debug/jobs", func(w http.ResponseWriter, r *http.Request) {
		all := jobs.List(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"total":    len(all),
			"byStatus": metrics.CountByStatus(all),
		})
	})
	return r
}

// New returns an http.Server for the ops router on addr.
func New(addr string, gatherer prometheus.Gatherer, jobs JobLister) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(gatherer, jobs),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write ops response", "error", err)
	}
}
