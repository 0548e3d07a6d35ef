package execution

import (
	"fmt"
	"sync"
	"time"
)

// DedupTracker remembers recently executed decision tuples so that repeated
// polling of an unchanged signal cannot fire twice within one signal epoch.
// Check-and-set is a single critical section, never a read-then-write race.
type DedupTracker struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDedupTracker creates a tracker with the given rolling window.
func NewDedupTracker(window time.Duration) *DedupTracker {
	return &DedupTracker{
		window: window,
		seen:   map[string]time.Time{},
		now:    time.Now,
	}
}

// Key builds the dedup tuple for an execution attempt.
func Key(indexID, direction string, entry float64) string {
	return fmt.Sprintf("%s|%s|%.2f", indexID, direction, entry)
}

// TryAcquire atomically records the key if it has not fired within the
// window. Returns false when the key is a duplicate.
func (t *DedupTracker) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if at, ok := t.seen[key]; ok && now.Sub(at) < t.window {
		return false
	}
	t.seen[key] = now
	t.evictLocked(now)
	return true
}

// Release forgets a key, re-arming it before the window expires. Used when
// an acquired execution attempt fails downstream.
func (t *DedupTracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
}

func (t *DedupTracker) evictLocked(now time.Time) {
	for k, at := range t.seen {
		if now.Sub(at) >= t.window {
			delete(t.seen, k)
		}
	}
}
