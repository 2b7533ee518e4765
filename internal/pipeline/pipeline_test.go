package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
	"github.com/fortilog-systems/fortilog/internal/parser"
	"github.com/fortilog-systems/fortilog/internal/tailer"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *captureSink) Append(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) snapshot() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

type staticDirs struct{ snap *directory.Snapshot }

func (d *staticDirs) Snapshot() *directory.Snapshot { return d.snap }

func testParser(t *testing.T) *parser.Parser {
	t.Helper()
	enricher, err := parser.NewEnricher(config.ParserConfig{
		HostCacheSize: 16,
		DNSCacheSize:  16,
		DNSCacheTTL:   time.Minute,
		DNSTimeout:    time.Millisecond,
	})
	require.NoError(t, err)
	return parser.New(enricher, &staticDirs{snap: directory.NewSnapshot(nil, nil, nil)})
}

func TestIngestion_LinesBecomeEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fortigate.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tail := tailer.New(config.TailerConfig{
		Path:         path,
		PollInterval: 20 * time.Millisecond,
		MaxBackoff:   100 * time.Millisecond,
		MaxReopens:   3,
	}, logging.Default())

	sink := &captureSink{}
	in := NewIngestion(tail, testParser(t), sink, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	// Give the tailer time to open before appending.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`srcip=192.168.1.10 srcname=laptop action=accept service=HTTPS dstip=8.8.8.8` + "\n")
	require.NoError(t, err)
	_, err = f.WriteString(`action=accept service=DNS` + "\n") // no srcip, discarded
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	events := sink.snapshot()
	assert.Equal(t, "192.168.1.10", events[0].SrcIP)
	assert.Equal(t, "laptop", events[0].SrcName)
	assert.Equal(t, models.StatusPermitted, events[0].Status)

	cancel()
	require.NoError(t, <-done, "cancellation is a clean stop")
}
