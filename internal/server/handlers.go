package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/httputil"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// EventStore is the query surface of the event store.
type EventStore interface {
	Query(ctx context.Context, filter models.EventFilter) (models.EventPage, error)
	Export(ctx context.Context, filter models.EventFilter, fn func(models.Event) error) error
}

// MetricsSource exposes the host metric series.
type MetricsSource interface {
	Current() models.MetricSample
	History() []models.MetricSample
}

// AlertLog exposes recently fired alerts.
type AlertLog interface {
	Recent() []models.AlertRecord
}

// DirectorySource exposes the current directory snapshot for read-time
// destination naming.
type DirectorySource interface {
	Snapshot() *directory.Snapshot
}

// Handler wires the HTTP API to the store, sampler, dispatcher and
// directories.
type Handler struct {
	store   EventStore
	metrics MetricsSource
	alerts  AlertLog
	dirs    DirectorySource
	log     *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(store EventStore, metrics MetricsSource, alerts AlertLog, dirs DirectorySource, log *logging.Logger) *Handler {
	return &Handler{
		store:   store,
		metrics: metrics,
		alerts:  alerts,
		dirs:    dirs,
		log:     log.With("component", "http"),
	}
}

// Events handles GET /api/v1/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.store.Query(r.Context(), filter)
	if err != nil {
		h.log.ErrorContext(r.Context(), "event query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	h.nameDestinations(page.Events)
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Export handles GET /api/v1/events/export, streaming NDJSON.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	snap := h.dirs.Snapshot()
	enc := json.NewEncoder(w)
	err = h.store.Export(r.Context(), filter, func(ev models.Event) error {
		if name, ok := snap.ResolveNetwork(ev.DstIP); ok {
			ev.DstName = name
		}
		return enc.Encode(ev)
	})
	if err != nil {
		// Headers are already out; all we can do is log and cut the stream.
		h.log.ErrorContext(r.Context(), "event export failed", "error", err)
	}
}

// MetricsCurrent handles GET /api/v1/metrics/current.
func (h *Handler) MetricsCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.metrics.Current())
}

// MetricsHistory handles GET /api/v1/metrics/history.
func (h *Handler) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	history := h.metrics.History()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"samples": history,
		"count":   len(history),
	})
}

// AlertsRecent handles GET /api/v1/alerts/recent.
func (h *Handler) AlertsRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	recent := h.alerts.Recent()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": recent,
		"count":  len(recent),
	})
}

// Stats handles GET /api/v1/stats: the dashboard header summary.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	cur := h.metrics.Current()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"hostname":       hostname,
		"cpu_percent":    cur.CPUPercent,
		"mem_percent":    cur.MemPercent,
		"mem_used_bytes": cur.MemUsedBytes,
		"disk_percent":   cur.DiskPercent,
		"sampled_at":     cur.Timestamp,
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// nameDestinations fills DstName from the current network directory. Done at
// read time so renaming a network relabels history without rewriting rows.
func (h *Handler) nameDestinations(events []models.Event) {
	snap := h.dirs.Snapshot()
	for i := range events {
		if name, ok := snap.ResolveNetwork(events[i].DstIP); ok {
			events[i].DstName = name
		}
	}
}

func parseFilter(r *http.Request) (models.EventFilter, error) {
	q := r.URL.Query()
	filter := models.EventFilter{
		Text:     q.Get("q"),
		Page:     1,
		PageSize: defaultPageSize,
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("from")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("to")
		}
		filter.To = &t
	}
	if v := q.Get("status"); v != "" {
		switch v {
		case string(models.StatusPermitted), string(models.StatusBlocked):
			s := models.Status(v)
			filter.Status = &s
		default:
			return filter, errInvalidParam("status")
		}
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, errInvalidParam("page")
		}
		filter.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return filter, errInvalidParam("page_size")
		}
		filter.PageSize = n
	}
	if v := q.Get("elevated"); v == "true" || v == "1" {
		filter.Elevated = true
	}

	return filter, nil
}

type paramError string

func errInvalidParam(name string) error { return paramError(name) }

func (e paramError) Error() string { return "invalid parameter: " + string(e) }
