package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (n *fakeNotifier) Notify(_ context.Context, _, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return !n.fail
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type fakeSource struct{ cpu float64 }

func (s *fakeSource) Current() models.MetricSample {
	return models.MetricSample{Timestamp: time.Now(), CPUPercent: s.cpu}
}

func testAlertsConfig() config.AlertsConfig {
	return config.AlertsConfig{
		CPUThreshold: 90,
		CPUCooldown:  300 * time.Second,
	}
}

func newTestDispatcher(source MetricsSource, limiter Limiter, notifier Notifier) *Dispatcher {
	return NewDispatcher(testAlertsConfig(), time.Second, source, limiter, notifier, logging.Default())
}

func TestMemoryLimiter_LeadingEdgeCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(300 * time.Second)
	limiter.(*memoryLimiter).now = clock.Now

	ctx := context.Background()

	ok, err := limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.True(t, ok, "first crossing fires")

	clock.Advance(10 * time.Second)
	ok, err = limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.False(t, ok, "inside cooldown window")

	clock.Advance(291 * time.Second)
	ok, err = limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed, rule re-armed")
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(time.Hour)
	ctx := context.Background()

	ok, _ := limiter.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = limiter.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestRedisLimiter_Cooldown(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), 300*time.Second)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	ok, err := limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.False(t, ok, "key present, still cooling down")

	mr.FastForward(301 * time.Second)
	ok, err = limiter.Allow(ctx, RuleCPU)
	require.NoError(t, err)
	assert.True(t, ok, "TTL expired, rule re-armed")
}

func TestDedupCache_FIFOEviction(t *testing.T) {
	cache := newDedupCache(50)

	for i := 0; i < 50; i++ {
		assert.False(t, cache.Seen(fmt.Sprintf("line-%d", i)))
	}
	assert.True(t, cache.Seen("line-0"), "still cached at capacity")

	// One more insert evicts the oldest entry.
	assert.False(t, cache.Seen("line-50"))
	assert.False(t, cache.Seen("line-0"), "oldest entry evicted")
	assert.True(t, cache.Seen("line-49"))
}

func TestDispatcher_CPURuleCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(300 * time.Second)
	limiter.(*memoryLimiter).now = clock.Now
	notifier := &fakeNotifier{}
	source := &fakeSource{cpu: 95}
	d := newTestDispatcher(source, limiter, notifier)

	ctx := context.Background()

	// Two samples over threshold 10 seconds apart produce one notification.
	d.evaluateCPU(ctx)
	clock.Advance(10 * time.Second)
	d.evaluateCPU(ctx)
	assert.Equal(t, 1, notifier.count())

	// After the window elapses the rule fires again even if load never dropped.
	clock.Advance(301 * time.Second)
	d.evaluateCPU(ctx)
	assert.Equal(t, 2, notifier.count())
}

func TestDispatcher_CPUBelowThresholdIsQuiet(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newTestDispatcher(&fakeSource{cpu: 90}, NewMemoryLimiter(time.Minute), notifier)

	d.evaluateCPU(context.Background())
	assert.Zero(t, notifier.count(), "threshold is strict greater-than")
}

func TestDispatcher_AuthLines(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newTestDispatcher(&fakeSource{}, NewMemoryLimiter(time.Minute), notifier)

	ctx := context.Background()
	d.HandleLine(ctx, "Aug 29 10:00:01 gw sshd[1]: Failed password for root from 10.0.0.9 port 22 ssh2")
	d.HandleLine(ctx, "Aug 29 10:00:02 gw CRON[2]: pam_unix(cron:session): session closed for user root")
	d.HandleLine(ctx, "Aug 29 10:00:03 gw sshd[3]: Accepted password for admin from 10.0.0.7 port 22 ssh2")

	require.Equal(t, 2, notifier.count(), "only authentication-relevant lines alert")

	// The same line observed again is deduplicated.
	d.HandleLine(ctx, "Aug 29 10:00:01 gw sshd[1]: Failed password for root from 10.0.0.9 port 22 ssh2")
	assert.Equal(t, 2, notifier.count())
}

func TestDispatcher_RecentIsBoundedNewestFirst(t *testing.T) {
	notifier := &fakeNotifier{fail: true}
	d := newTestDispatcher(&fakeSource{}, NewMemoryLimiter(time.Minute), notifier)

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		d.HandleLine(ctx, fmt.Sprintf("sshd[%d]: Invalid user guest from 10.0.0.%d", i, i))
	}

	recent := d.Recent()
	require.Len(t, recent, recentCapacity)
	assert.Contains(t, recent[0].Message, "sshd[59]", "newest first")
	assert.Contains(t, recent[len(recent)-1].Message, "sshd[10]", "oldest records evicted")
	assert.False(t, recent[0].Delivered, "delivery failure is recorded, not retried")
}
