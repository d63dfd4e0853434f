// Package presence tracks which users the server reports as online.
package presence

import (
	"slices"
	"sync"
)

// Tracker holds the latest online snapshot. Each snapshot replaces the
// previous one entirely.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewTracker creates a tracker with nobody online.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// Replace swaps the online set for ids. Empty ids are ignored.
func (t *Tracker) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.online = next
	t.mu.Unlock()
}

// IsOnline reports whether id was in the latest snapshot.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Len returns the number of online users.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// Snapshot returns the online ids in sorted order.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
