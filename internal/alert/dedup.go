package alert

import "sync"

// dedupCache is a bounded recently-seen set with FIFO eviction, used to
// suppress repeat notifications for lines the overlapping scan window
// observes more than once.
type dedupCache struct {
	mu    sync.Mutex
	cap   int
	seen  map[string]struct{}
	order []string
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// Seen records key and reports whether it was already present. At capacity
// the oldest key is evicted first.
func (d *dedupCache) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	return false
}
