package notify

import (
	"sync"
	"time"
)

// Registry tracks the last send attempt per notification key. It is the
// gate that stops the same alert repeating inside its cooldown window, and
// its contents are persisted through the notification settings file so the
// window survives restarts.
type Registry struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewRegistry seeds a registry from persisted timestamps. The seed map is
// copied; now may be nil for the wall clock.
func NewRegistry(seed map[string]time.Time, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{last: make(map[string]time.Time, len(seed)), now: now}
	for k, t := range seed {
		r.last[k] = t
	}
	return r
}

// Ready reports whether key is outside its cooldown window.
func (r *Registry) Ready(key string, cooldown time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.last[key]
	if !ok {
		return true
	}
	return r.now().Sub(last) >= cooldown
}

// MarkAttempt records a send attempt for key at the current time.
func (r *Registry) MarkAttempt(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[key] = r.now()
}

// Snapshot returns a copy of the registry for persistence.
func (r *Registry) Snapshot() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.last))
	for k, t := range r.last {
		out[k] = t
	}
	return out
}

// Merge folds persisted timestamps into the registry, keeping whichever
// timestamp is later. Used when the settings file is edited externally while
// the monitor is running.
func (r *Registry) Merge(seed map[string]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range seed {
		if existing, ok := r.last[k]; !ok || t.After(existing) {
			r.last[k] = t
		}
	}
}
