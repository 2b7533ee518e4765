package store

import (
	"context"
	"time"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/metrics"
	"github.com/fortilog-systems/fortilog/internal/models"
)

// Flusher commits one batch of events to durable storage.
type Flusher interface {
	Flush(ctx context.Context, events []models.Event) error
}

// Writer buffers events from the ingestion path and flushes them as a batch
// when the flush interval elapses or the buffer reaches the flush size,
// whichever comes first. It is the single writer; queries only ever see
// flushed batches.
type Writer struct {
	in         chan models.Event
	flusher    Flusher
	interval   time.Duration
	size       int
	maxRetries int
	log        *logging.Logger
}

// NewWriter creates a Writer over the given flusher.
func NewWriter(flusher Flusher, cfg config.StoreConfig, log *logging.Logger) *Writer {
	return &Writer{
		in:         make(chan models.Event, 4096),
		flusher:    flusher,
		interval:   cfg.FlushInterval,
		size:       cfg.FlushSize,
		maxRetries: cfg.MaxRetries,
		log:        log.With("component", "store-writer"),
	}
}

// Append enqueues one event, fire-and-forget. When the queue is saturated the
// event is dropped rather than blocking ingestion.
func (w *Writer) Append(ev models.Event) {
	select {
	case w.in <- ev:
	default:
		metrics.EventsDropped.Inc()
		w.log.Warn("writer queue saturated, dropping event", "src_ip", ev.SrcIP)
	}
}

// Run drives the flush loop until ctx is cancelled, then performs one
// best-effort final flush. Events appended in order are flushed in order.
func (w *Writer) Run(ctx context.Context) {
	buf := make([]models.Event, 0, w.size)
	retries := 0

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	flush := func(fctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := w.flusher.Flush(fctx, buf); err != nil {
			metrics.FlushErrors.Inc()
			retries++
			w.log.Error("flush failed, retaining buffer", "events", len(buf), "attempt", retries, "error", err)
			if retries > w.maxRetries {
				// Drop the oldest batch so a dead backend cannot grow the
				// buffer without bound.
				n := w.size
				if n > len(buf) {
					n = len(buf)
				}
				buf = append(buf[:0], buf[n:]...)
				metrics.BatchesDropped.Inc()
				w.log.Warn("dropped oldest batch after exhausting retries", "dropped", n)
				retries = 0
			}
			return
		}
		metrics.FlushBatches.Inc()
		buf = buf[:0]
		retries = 0
	}

	for {
		select {
		case ev := <-w.in:
			buf = append(buf, ev)
			metrics.BufferDepth.Set(float64(len(buf)))
			if len(buf) >= w.size {
				flush(ctx)
				metrics.BufferDepth.Set(float64(len(buf)))
			}
		case <-ticker.C:
			flush(ctx)
			metrics.BufferDepth.Set(float64(len(buf)))
		case <-ctx.Done():
			// Drain whatever ingestion managed to enqueue, then flush once.
			for {
				select {
				case ev := <-w.in:
					buf = append(buf, ev)
					continue
				default:
				}
				break
			}
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return
		}
	}
}
