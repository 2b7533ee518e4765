// Package sysmon samples host resource usage into a bounded rolling time
// series: 1440 one-minute slots, 24 hours of history.
package sysmon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
)

// RingCapacity is 24 hours at one-minute granularity.
const RingCapacity = 1440

// Probe reads raw host counters. Wrapped in an interface so tests can feed
// synthetic values.
type Probe interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (usedBytes uint64, percent float64, err error)
	DiskPercent(ctx context.Context, path string) (float64, error)
	NetCounters(ctx context.Context) (sent, recv uint64, err error)
}

type hostProbe struct{}

func (hostProbe) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

func (hostProbe) Memory(ctx context.Context) (uint64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Used, vm.UsedPercent, nil
}

func (hostProbe) DiskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func (hostProbe) NetCounters(ctx context.Context) (uint64, uint64, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return 0, 0, err
	}
	return counters[0].BytesSent, counters[0].BytesRecv, nil
}

// Sampler owns the metric series. One goroutine samples and publishes
// immutable snapshots; readers never observe torn state.
type Sampler struct {
	cfg     config.MonitorConfig
	log     *logging.Logger
	probe   Probe
	ring    *Ring
	current atomic.Pointer[models.MetricSample]

	prevSent, prevRecv uint64
	havePrev           bool
}

// New creates a Sampler over the real host probe.
func New(cfg config.MonitorConfig, log *logging.Logger) *Sampler {
	return newSampler(cfg, log, hostProbe{})
}

func newSampler(cfg config.MonitorConfig, log *logging.Logger, probe Probe) *Sampler {
	s := &Sampler{
		cfg:   cfg,
		log:   log.With("component", "sysmon"),
		probe: probe,
		ring:  NewRing(RingCapacity),
	}
	s.current.Store(&models.MetricSample{})
	return s
}

// Current returns the most recent sample.
func (s *Sampler) Current() models.MetricSample {
	return *s.current.Load()
}

// History returns the rolling series, oldest first, most recent last.
func (s *Sampler) History() []models.MetricSample {
	return s.ring.Snapshot()
}

// Run samples on the configured interval and records one sample per ring
// interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	s.sample(ctx)

	sampleTicker := time.NewTicker(s.cfg.SampleInterval)
	defer sampleTicker.Stop()
	ringTicker := time.NewTicker(s.cfg.RingInterval)
	defer ringTicker.Stop()

	for {
		select {
		case <-sampleTicker.C:
			s.sample(ctx)
		case <-ringTicker.C:
			s.ring.Add(s.Current())
		case <-ctx.Done():
			return
		}
	}
}

// sample reads all counters once and publishes a new current sample.
// Individual probe failures leave that field zero rather than failing the
// whole sample.
func (s *Sampler) sample(ctx context.Context) {
	now := time.Now().Truncate(time.Second)
	out := models.MetricSample{Timestamp: now}

	if v, err := s.probe.CPUPercent(ctx); err == nil {
		out.CPUPercent = v
	} else {
		s.log.WarnContext(ctx, "cpu probe failed", "error", err)
	}
	if used, pct, err := s.probe.Memory(ctx); err == nil {
		out.MemUsedBytes = used
		out.MemPercent = pct
	} else {
		s.log.WarnContext(ctx, "memory probe failed", "error", err)
	}
	if v, err := s.probe.DiskPercent(ctx, s.cfg.DiskPath); err == nil {
		out.DiskPercent = v
	} else {
		s.log.WarnContext(ctx, "disk probe failed", "error", err)
	}
	if sent, recv, err := s.probe.NetCounters(ctx); err == nil {
		if s.havePrev {
			// Counter resets floor at zero instead of going negative.
			if sent >= s.prevSent {
				out.NetSentBytes = sent - s.prevSent
			}
			if recv >= s.prevRecv {
				out.NetRecvBytes = recv - s.prevRecv
			}
		}
		s.prevSent, s.prevRecv = sent, recv
		s.havePrev = true
	} else {
		s.log.WarnContext(ctx, "network probe failed", "error", err)
	}

	s.current.Store(&out)
}
