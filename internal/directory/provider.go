package directory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fortilog-systems/fortilog/internal/logging"
)

// Loader fetches a fresh Snapshot from the source of truth.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Provider publishes directory snapshots to concurrent readers and refreshes
// them in the background. A failed refresh keeps the previous snapshot.
type Provider struct {
	loader   Loader
	interval time.Duration
	log      *logging.Logger
	current  atomic.Pointer[Snapshot]
}

// NewProvider creates a Provider seeded with an empty snapshot. Call Refresh
// once before serving if an initial load is required.
func NewProvider(loader Loader, interval time.Duration, log *logging.Logger) *Provider {
	p := &Provider{loader: loader, interval: interval, log: log}
	p.current.Store(NewSnapshot(nil, nil, nil))
	return p
}

// Snapshot returns the current immutable directory view.
func (p *Provider) Snapshot() *Snapshot {
	return p.current.Load()
}

// Refresh loads a new snapshot immediately.
func (p *Provider) Refresh(ctx context.Context) error {
	snap, err := p.loader.Load(ctx)
	if err != nil {
		return err
	}
	p.current.Store(snap)
	d, n, g := snap.Len()
	p.log.DebugContext(ctx, "directories refreshed", "devices", d, "networks", n, "groups", g)
	return nil
}

// Run refreshes the directories on the configured interval until ctx is done.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.log.WarnContext(ctx, "directory refresh failed, keeping previous snapshot", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
