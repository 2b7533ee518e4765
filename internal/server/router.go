package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fortilog-systems/fortilog/internal/middleware"
)

// NewRouter constructs a ServeMux with the API routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events", h.Events)
	mux.HandleFunc("/api/v1/events/export", h.Export)
	mux.HandleFunc("/api/v1/metrics/current", h.MetricsCurrent)
	mux.HandleFunc("/api/v1/metrics/history", h.MetricsHistory)
	mux.HandleFunc("/api/v1/alerts/recent", h.AlertsRecent)
	mux.HandleFunc("/api/v1/stats", h.Stats)
	mux.HandleFunc("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())
	return middleware.RequestID(mux)
}
