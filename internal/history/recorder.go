// Package history keeps recent connectivity samples and reboot events in memory.
package history

import (
	"sort"
	"sync"
	"time"

	"routerrebooter/internal/models"
)

const maxReboots = 256

// Recorder is a bounded in-memory log. It is safe for concurrent use: the
// control loop writes, the status server reads.
type Recorder struct {
	maxSamples int

	mu      sync.RWMutex
	samples []models.ConnectivityStatus
	reboots []models.RebootEvent
}

// NewRecorder keeps at most maxSamples samples (minimum 1).
func NewRecorder(maxSamples int) *Recorder {
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Recorder{maxSamples: maxSamples}
}

// RecordSample appends a connectivity sample, dropping the oldest when full.
func (r *Recorder) RecordSample(s models.ConnectivityStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	if len(r.samples) > r.maxSamples {
		r.samples = r.samples[len(r.samples)-r.maxSamples:]
	}
}

// RecordReboot appends a reboot event.
func (r *Recorder) RecordReboot(e models.RebootEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reboots = append(r.reboots, e)
	if len(r.reboots) > maxReboots {
		r.reboots = r.reboots[len(r.reboots)-maxReboots:]
	}
}

// Latest returns the newest sample.
func (r *Recorder) Latest() (models.ConnectivityStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.samples) == 0 {
		return models.ConnectivityStatus{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Samples returns up to limit of the newest samples, oldest first. limit <= 0 means all.
func (r *Recorder) Samples(limit int) []models.ConnectivityStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.samples, limit)
}

// SamplesSince returns samples whose timestamp is >= cutoff.
func (r *Recorder) SamplesSince(cutoff time.Time) []models.ConnectivityStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := sort.Search(len(r.samples), func(i int) bool {
		return !r.samples[i].CheckedAt.Before(cutoff)
	})
	return tail(r.samples[idx:], 0)
}

// Reboots returns up to limit of the newest reboot events, oldest first.
func (r *Recorder) Reboots(limit int) []models.RebootEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.reboots, limit)
}

func tail[T any](items []T, limit int) []T {
	if len(items) == 0 {
		return nil
	}
	if limit > 0 && limit < len(items) {
		items = items[len(items)-limit:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
