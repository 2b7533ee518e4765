package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
)

type fakeStore struct {
	page       models.EventPage
	lastFilter models.EventFilter
	exportRows []models.Event
	err        error
}

func (s *fakeStore) Query(_ context.Context, filter models.EventFilter) (models.EventPage, error) {
	s.lastFilter = filter
	return s.page, s.err
}

func (s *fakeStore) Export(_ context.Context, filter models.EventFilter, fn func(models.Event) error) error {
	s.lastFilter = filter
	for _, ev := range s.exportRows {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return s.err
}

type fakeMetrics struct {
	current models.MetricSample
	history []models.MetricSample
}

func (m *fakeMetrics) Current() models.MetricSample   { return m.current }
func (m *fakeMetrics) History() []models.MetricSample { return m.history }

type fakeAlerts struct{ recent []models.AlertRecord }

func (a *fakeAlerts) Recent() []models.AlertRecord { return a.recent }

type fakeDirs struct{ snap *directory.Snapshot }

func (d *fakeDirs) Snapshot() *directory.Snapshot { return d.snap }

func newTestServer(t *testing.T, store *fakeStore, metrics *fakeMetrics, alerts *fakeAlerts, dirs *fakeDirs) *httptest.Server {
	t.Helper()
	if metrics == nil {
		metrics = &fakeMetrics{}
	}
	if alerts == nil {
		alerts = &fakeAlerts{}
	}
	if dirs == nil {
		dirs = &fakeDirs{snap: directory.NewSnapshot(nil, nil, nil)}
	}
	h := NewHandler(store, metrics, alerts, dirs, logging.Default())
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestEvents_FilterParsing(t *testing.T) {
	store := &fakeStore{page: models.EventPage{Events: []models.Event{}, Total: 0}}
	srv := newTestServer(t, store, nil, nil, nil)

	var page models.EventPage
	resp := getJSON(t, srv.URL+"/api/v1/events?from=2026-08-01T00:00:00Z&to=2026-08-02T00:00:00Z&q=host-7&status=blocked&page=3&page_size=25", &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f := store.lastFilter
	require.NotNil(t, f.From)
	require.NotNil(t, f.To)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), f.From.UTC())
	assert.Equal(t, "host-7", f.Text)
	require.NotNil(t, f.Status)
	assert.Equal(t, models.StatusBlocked, *f.Status)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, 25, f.PageSize)
	assert.False(t, f.Elevated)
}

func TestEvents_Defaults(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store, nil, nil, nil)

	getJSON(t, srv.URL+"/api/v1/events", nil)
	assert.Equal(t, 1, store.lastFilter.Page)
	assert.Equal(t, defaultPageSize, store.lastFilter.PageSize)
	assert.Nil(t, store.lastFilter.From)
	assert.Nil(t, store.lastFilter.Status)
}

func TestEvents_BadParams(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, nil, nil)

	for _, query := range []string{
		"?from=yesterday",
		"?status=dropped",
		"?page=0",
		"?page_size=10000",
	} {
		resp, err := http.Get(srv.URL + "/api/v1/events" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestEvents_DestinationNamedFromDirectory(t *testing.T) {
	store := &fakeStore{page: models.EventPage{
		Events: []models.Event{
			{SrcIP: "192.168.1.10", DstIP: "8.8.8.8"},
			{SrcIP: "192.168.1.11", DstIP: "10.0.0.5"},
		},
		Total: 2,
	}}
	dirs := &fakeDirs{snap: directory.NewSnapshot(nil, map[string]string{
		"8.8.8.0/24": "Google DNS",
	}, nil)}
	srv := newTestServer(t, store, nil, nil, dirs)

	var page models.EventPage
	getJSON(t, srv.URL+"/api/v1/events", &page)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "Google DNS", page.Events[0].DstName)
	assert.Empty(t, page.Events[1].DstName, "unmatched destination stays unnamed")
}

func TestExport_StreamsNDJSON(t *testing.T) {
	store := &fakeStore{exportRows: []models.Event{
		{ID: 2, SrcIP: "192.168.1.10", Raw: "row-2"},
		{ID: 1, SrcIP: "192.168.1.11", Raw: "row-1"},
	}}
	srv := newTestServer(t, store, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/events/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var lines []models.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var ev models.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		lines = append(lines, ev)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "row-2", lines[0].Raw)
	assert.Equal(t, "row-1", lines[1].Raw)
}

func TestMetricsEndpoints(t *testing.T) {
	metrics := &fakeMetrics{
		current: models.MetricSample{CPUPercent: 12.5, MemPercent: 40},
		history: []models.MetricSample{{CPUPercent: 10}, {CPUPercent: 12.5}},
	}
	srv := newTestServer(t, &fakeStore{}, metrics, nil, nil)

	var cur models.MetricSample
	getJSON(t, srv.URL+"/api/v1/metrics/current", &cur)
	assert.Equal(t, 12.5, cur.CPUPercent)

	var hist struct {
		Samples []models.MetricSample `json:"samples"`
		Count   int                   `json:"count"`
	}
	getJSON(t, srv.URL+"/api/v1/metrics/history", &hist)
	assert.Equal(t, 2, hist.Count)
	require.Len(t, hist.Samples, 2)
	assert.Equal(t, 10.0, hist.Samples[0].CPUPercent)
}

func TestAlertsRecent(t *testing.T) {
	alerts := &fakeAlerts{recent: []models.AlertRecord{
		{RuleID: "cpu_high", Message: "CPU usage at 95.0% on gw", Delivered: true},
	}}
	srv := newTestServer(t, &fakeStore{}, nil, alerts, nil)

	var body struct {
		Alerts []models.AlertRecord `json:"alerts"`
		Count  int                  `json:"count"`
	}
	getJSON(t, srv.URL+"/api/v1/alerts/recent", &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "cpu_high", body.Alerts[0].RuleID)
}

func TestStatsAndHealth(t *testing.T) {
	metrics := &fakeMetrics{current: models.MetricSample{CPUPercent: 33}}
	srv := newTestServer(t, &fakeStore{}, metrics, nil, nil)

	var stats map[string]interface{}
	getJSON(t, srv.URL+"/api/v1/stats", &stats)
	assert.NotEmpty(t, stats["hostname"])
	assert.Equal(t, 33.0, stats["cpu_percent"])

	var health map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, nil, nil)

	paths := []string{
		"/api/v1/events",
		"/api/v1/events/export",
		"/api/v1/metrics/current",
		"/api/v1/metrics/history",
		"/api/v1/alerts/recent",
		"/api/v1/stats",
		"/healthz",
	}
	for _, path := range paths {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}
