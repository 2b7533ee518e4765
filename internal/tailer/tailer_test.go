package tailer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
)

func testConfig(path string) config.TailerConfig {
	return config.TailerConfig{
		Path:         path,
		PollInterval: 20 * time.Millisecond,
		MaxBackoff:   100 * time.Millisecond,
		MaxReopens:   5,
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func collect(t *testing.T, lines <-chan string, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "line channel closed early")
			out = append(out, line)
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines, got %d: %v", n, len(out), out)
		}
	}
	return out
}

func TestTailer_EmitsOnlyNewLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fortigate.log")
	appendLine(t, path, "historical line")

	tl := New(testConfig(path), logging.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	// Give the tailer a moment to open at EOF before appending.
	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "first")
	appendLine(t, path, "second")

	got := collect(t, tl.Lines(), 2)
	require.Equal(t, []string{"first", "second"}, got)

	cancel()
	require.NoError(t, <-done)
}

func TestTailer_SurvivesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fortigate.log")
	appendLine(t, path, "old")

	tl := New(testConfig(path), logging.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "before-truncate")
	require.Equal(t, []string{"before-truncate"}, collect(t, tl.Lines(), 1))

	require.NoError(t, os.Truncate(path, 0))
	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "after-truncate")
	require.Equal(t, []string{"after-truncate"}, collect(t, tl.Lines(), 1))
}

func TestTailer_SurvivesRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fortigate.log")
	appendLine(t, path, "old")

	tl := New(testConfig(path), logging.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "pre-rotate")
	require.Equal(t, []string{"pre-rotate"}, collect(t, tl.Lines(), 1))

	require.NoError(t, os.Rename(path, path+".1"))
	appendLine(t, path, "post-rotate")

	require.Equal(t, []string{"post-rotate"}, collect(t, tl.Lines(), 1))
}

func TestTailer_MissingSourceExhaustsReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never-exists.log")

	cfg := testConfig(path)
	cfg.MaxReopens = 3
	tl := New(cfg, logging.Default())

	err := tl.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceLost)

	// Channel is closed on return.
	_, ok := <-tl.Lines()
	require.False(t, ok)
}
