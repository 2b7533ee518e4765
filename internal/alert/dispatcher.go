package alert

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/metrics"
	"github.com/fortilog-systems/fortilog/internal/models"
)

const (
	// RuleCPU fires when the latest CPU sample crosses the configured threshold.
	RuleCPU = "cpu_high"
	// RuleAuth fires for authentication-relevant system log lines.
	RuleAuth = "auth_event"

	dedupCapacity  = 50
	recentCapacity = 50
)

// authMarkers are the substrings that make a system log line
// authentication-relevant.
var authMarkers = []string{
	"Accepted password",
	"Accepted publickey",
	"Failed password",
	"authentication failure",
	"Invalid user",
	"session opened",
}

// MetricsSource exposes the latest host sample to the CPU rule.
type MetricsSource interface {
	Current() models.MetricSample
}

// Dispatcher evaluates alert rules and hands firings to the Notifier. The CPU
// rule polls the metrics source; the auth rule is fed tailed system log lines
// through HandleLine.
type Dispatcher struct {
	cfg      config.AlertsConfig
	interval time.Duration
	source   MetricsSource
	limiter  Limiter
	notifier Notifier
	log      *logging.Logger
	dedup    *dedupCache
	hostname string

	mu     sync.RWMutex
	recent []models.AlertRecord
}

// NewDispatcher creates a Dispatcher. interval is how often the CPU rule
// re-reads the metrics source.
func NewDispatcher(cfg config.AlertsConfig, interval time.Duration, source MetricsSource, limiter Limiter, notifier Notifier, log *logging.Logger) *Dispatcher {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Dispatcher{
		cfg:      cfg,
		interval: interval,
		source:   source,
		limiter:  limiter,
		notifier: notifier,
		log:      log.With("component", "alerts"),
		dedup:    newDedupCache(dedupCapacity),
		hostname: hostname,
	}
}

// Run polls the CPU rule until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.evaluateCPU(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// evaluateCPU fires when the current sample crosses the threshold. The
// cooldown is leading-edge: crossing fires at most once per window, and the
// rule re-arms by time alone, so sustained load keeps alerting once per
// window.
func (d *Dispatcher) evaluateCPU(ctx context.Context) {
	cur := d.source.Current()
	if cur.CPUPercent <= d.cfg.CPUThreshold {
		return
	}
	allowed, err := d.limiter.Allow(ctx, RuleCPU)
	if err != nil {
		d.log.ErrorContext(ctx, "cooldown check failed", "rule", RuleCPU, "error", err)
		return
	}
	if !allowed {
		metrics.AlertsSuppressed.WithLabelValues(RuleCPU).Inc()
		return
	}
	msg := fmt.Sprintf("CPU usage at %.1f%% on %s", cur.CPUPercent, d.hostname)
	d.fire(ctx, RuleCPU, RuleCPU, msg)
}

// HandleLine runs the auth rule on one tailed system log line. Lines without
// an authentication marker are ignored; repeated lines are suppressed by the
// bounded dedup cache.
func (d *Dispatcher) HandleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" || !isAuthLine(line) {
		return
	}
	if d.dedup.Seen(line) {
		metrics.AlertsSuppressed.WithLabelValues(RuleAuth).Inc()
		return
	}
	d.fire(ctx, RuleAuth, line, "auth: "+line)
}

func isAuthLine(line string) bool {
	for _, marker := range authMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) fire(ctx context.Context, ruleID, dedupKey, message string) {
	delivered := d.notifier.Notify(ctx, ruleID, message)
	metrics.AlertsFired.WithLabelValues(ruleID).Inc()
	d.record(models.AlertRecord{
		RuleID:    ruleID,
		DedupKey:  dedupKey,
		Timestamp: time.Now().Truncate(time.Second),
		Message:   message,
		Delivered: delivered,
	})
}

func (d *Dispatcher) record(rec models.AlertRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.recent) >= recentCapacity {
		d.recent = d.recent[1:]
	}
	d.recent = append(d.recent, rec)
}

// Recent returns recorded alerts, newest first.
func (d *Dispatcher) Recent() []models.AlertRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.AlertRecord, len(d.recent))
	for i, rec := range d.recent {
		out[len(d.recent)-1-i] = rec
	}
	return out
}
