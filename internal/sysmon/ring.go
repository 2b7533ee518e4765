package sysmon

import (
	"sync"

	"github.com/fortilog-systems/fortilog/internal/models"
)

// Ring is a fixed-capacity time series of metric samples. Inserting into a
// full ring evicts the oldest sample; memory use never grows past capacity.
type Ring struct {
	mu    sync.RWMutex
	buf   []models.MetricSample
	start int
	count int
}

// NewRing creates a Ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]models.MetricSample, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (r *Ring) Add(s models.MetricSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Snapshot returns the stored samples ordered oldest to newest.
func (r *Ring) Snapshot() []models.MetricSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.MetricSample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
