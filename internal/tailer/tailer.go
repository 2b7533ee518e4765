// Package tailer follows a live-appended log file and emits new lines in
// arrival order. It starts at the current end of file, survives rotation and
// truncation, and delivers lines at-least-once across rotation races.
package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/metrics"
)

// ErrSourceLost is returned by Run when the log source stays inaccessible
// beyond the configured reopen budget.
var ErrSourceLost = errors.New("log source permanently inaccessible")

// Tailer follows one log file. It is not restartable: once Run returns the
// line channel is closed.
type Tailer struct {
	path         string
	pollInterval time.Duration
	maxBackoff   time.Duration
	maxReopens   int
	log          *logging.Logger
	lines        chan string
}

// New creates a Tailer for the configured log source.
func New(cfg config.TailerConfig, log *logging.Logger) *Tailer {
	return &Tailer{
		path:         cfg.Path,
		pollInterval: cfg.PollInterval,
		maxBackoff:   cfg.MaxBackoff,
		maxReopens:   cfg.MaxReopens,
		log:          log.With("component", "tailer"),
		lines:        make(chan string, 256),
	}
}

// Lines returns the channel of newline-terminated lines, without the newline.
func (t *Tailer) Lines() <-chan string { return t.lines }

// Run follows the file until ctx is cancelled (returns nil) or the source is
// lost beyond the reopen budget (returns ErrSourceLost). The lines channel is
// closed on return.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.lines)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory, not the file: rotation replaces the file and
		// would silently detach a file-level watch.
		if werr := watcher.Add(filepath.Dir(t.path)); werr != nil {
			t.log.WarnContext(ctx, "directory watch unavailable, polling only", "error", werr)
		}
		defer watcher.Close()
	} else {
		t.log.WarnContext(ctx, "fsnotify unavailable, polling only", "error", err)
		watcher = nil
	}

	f, info, err := t.open(ctx, io.SeekEnd)
	if err != nil {
		return err
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	reader := bufio.NewReader(f)
	var partial []byte
	var offset int64
	if info != nil {
		offset = info.Size()
	}

	for {
		chunk, rerr := reader.ReadString('\n')
		if len(chunk) > 0 {
			offset += int64(len(chunk))
			partial = append(partial, chunk...)
			if chunk[len(chunk)-1] == '\n' {
				line := string(partial[:len(partial)-1])
				partial = partial[:0]
				select {
				case t.lines <- line:
					metrics.LinesRead.Inc()
				case <-ctx.Done():
					return nil
				}
			}
			continue
		}

		if rerr != nil && !errors.Is(rerr, io.EOF) {
			t.log.WarnContext(ctx, "read error, reopening source", "error", rerr)
			f.Close()
			f, info, err = t.open(ctx, io.SeekStart)
			if err != nil {
				return err
			}
			reader.Reset(f)
			offset = 0
			partial = partial[:0]
			continue
		}

		// At EOF: detect rotation or truncation before waiting for data.
		switch t.checkSource(info, offset) {
		case sourceRotated, sourceMissing:
			metrics.Reopens.Inc()
			f.Close()
			f, info, err = t.open(ctx, io.SeekStart)
			if err != nil {
				return err
			}
			reader.Reset(f)
			offset = 0
			partial = partial[:0]
			continue
		case sourceTruncated:
			metrics.Reopens.Inc()
			if _, serr := f.Seek(0, io.SeekStart); serr != nil {
				f.Close()
				f, info, err = t.open(ctx, io.SeekStart)
				if err != nil {
					return err
				}
			}
			reader.Reset(f)
			offset = 0
			partial = partial[:0]
			continue
		}

		if !t.wait(ctx, watcher) {
			return nil
		}
	}
}

type sourceState int

const (
	sourceUnchanged sourceState = iota
	sourceRotated
	sourceTruncated
	sourceMissing
)

func (t *Tailer) checkSource(opened os.FileInfo, offset int64) sourceState {
	current, err := os.Stat(t.path)
	if err != nil {
		return sourceMissing
	}
	if opened != nil && !os.SameFile(opened, current) {
		return sourceRotated
	}
	if current.Size() < offset {
		return sourceTruncated
	}
	return sourceUnchanged
}

// wait blocks until new data may be available. Returns false on shutdown.
func (t *Tailer) wait(ctx context.Context, watcher *fsnotify.Watcher) bool {
	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		}
	}
	select {
	case <-watcher.Events:
		return true
	case <-watcher.Errors:
		return true
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// open opens the source with capped exponential backoff, seeking to whence
// (end on first open, start after rotation). A nil error guarantees a usable
// handle; ErrSourceLost is returned after the reopen budget is spent.
func (t *Tailer) open(ctx context.Context, whence int) (*os.File, os.FileInfo, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = t.maxBackoff
	bo.MaxElapsedTime = 0

	attempts := 0
	for {
		f, err := os.Open(t.path)
		if err == nil {
			info, serr := f.Stat()
			if serr != nil {
				f.Close()
				return nil, nil, fmt.Errorf("stat %s: %w", t.path, serr)
			}
			if _, serr := f.Seek(0, whence); serr != nil {
				f.Close()
				return nil, nil, fmt.Errorf("seek %s: %w", t.path, serr)
			}
			return f, info, nil
		}

		attempts++
		if t.maxReopens > 0 && attempts >= t.maxReopens {
			t.log.ErrorContext(ctx, "giving up on log source", "path", t.path, "attempts", attempts)
			return nil, nil, fmt.Errorf("%w: %s", ErrSourceLost, t.path)
		}

		wait := bo.NextBackOff()
		t.log.WarnContext(ctx, "log source unavailable, retrying", "path", t.path, "backoff", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}
