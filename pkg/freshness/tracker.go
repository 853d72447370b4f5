// Package freshness tracks when entities were fetched and when a fetch was last attempted.
//
// A fetched entity is fresh as long as its age is below the time-to-live.
// Independently of that, attempts for the same id are spaced by a debounce window,
// which is recorded when the decision is made (not when the fetch completes),
// so failing fetches do not hot-loop.
package freshness

import (
	"sync"
	"time"
)

// IsValid reports whether something fetched at timestamp is still within ttl at now.
// A zero timestamp is never valid.
func IsValid(now, timestamp time.Time, ttl time.Duration) bool {
	return !timestamp.IsZero() && now.Sub(timestamp) < ttl
}

// InFlight is implemented by registries of outstanding requests.
type InFlight interface {
	Has(id string) bool
}

// Tracker holds the fetch and attempt timestamps of a single cache region.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	debounce time.Duration
	now      func() time.Time
	fetched  map[string]time.Time
	attempts map[string]time.Time
}

// NewTracker creates a tracker. If now is nil, time.Now is used.
// A zero debounce window disables debouncing.
func NewTracker(ttl, debounce time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		ttl:      ttl,
		debounce: debounce,
		now:      now,
		fetched:  make(map[string]time.Time),
		attempts: make(map[string]time.Time),
	}
}

// TTL returns the time-to-live of the tracked region.
func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

// IsFresh reports whether id was fetched within the TTL.
func (t *Tracker) IsFresh(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return IsValid(t.now(), t.fetched[id], t.ttl)
}

// FetchedAt returns the time id was last fetched successfully.
func (t *Tracker) FetchedAt(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.fetched[id]
	return at, ok
}

// MarkFetched records a successful fetch of id at the given time.
func (t *Tracker) MarkFetched(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetched[id] = at
}

// ShouldDebounce reports whether a fetch for id must be suppressed, either because
// a request for it is in flight or because the last attempt is within the debounce window.
// If it returns false, the current time is recorded as the last attempt for id.
func (t *Tracker) ShouldDebounce(id string, inFlight InFlight) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if inFlight != nil && inFlight.Has(id) {
		return true
	}
	now := t.now()
	if last, ok := t.attempts[id]; ok && now.Sub(last) < t.debounce {
		return true
	}
	t.attempts[id] = now
	return false
}

// RecordAttempt records the current time as the last attempt for id without checking the window.
func (t *Tracker) RecordAttempt(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[id] = t.now()
}

// Forget drops every timestamp of id, so the next load fetches it.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fetched, id)
	delete(t.attempts, id)
}

// Reset drops all timestamps.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetched = make(map[string]time.Time)
	t.attempts = make(map[string]time.Time)
}
