package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion pipeline metrics
	LinesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_tailer_lines_total",
			Help: "Total number of raw lines emitted by the tailer",
		},
	)

	Reopens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_tailer_reopens_total",
			Help: "Total number of log source reopen transitions",
		},
	)

	EventsParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_parser_events_total",
			Help: "Total number of lines parsed into events",
		},
	)

	LinesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_parser_discarded_total",
			Help: "Total number of lines discarded as non-traffic",
		},
	)

	DNSLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fortilog_parser_dns_lookups_total",
			Help: "Total reverse DNS lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Store write-path metrics
	FlushBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_store_flush_batches_total",
			Help: "Total number of event batches flushed to storage",
		},
	)

	FlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_store_flush_errors_total",
			Help: "Total number of failed flush attempts",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_store_events_dropped_total",
			Help: "Total number of events dropped at intake due to queue saturation",
		},
	)

	BatchesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fortilog_store_batches_dropped_total",
			Help: "Total number of batches dropped after exhausting flush retries",
		},
	)

	BufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fortilog_store_buffer_depth",
			Help: "Current number of buffered, unflushed events",
		},
	)

	// Alerting metrics
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fortilog_alerts_fired_total",
			Help: "Total notifications produced by rule",
		},
		[]string{"rule"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fortilog_alerts_suppressed_total",
			Help: "Total notifications suppressed by cooldown or dedup",
		},
		[]string{"rule"},
	)
)
