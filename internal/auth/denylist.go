package auth

import (
	"sync"
	"time"
)

// MemoryDenylist is an in-process Denylist. Entries expire so that the list
// does not outgrow the lifetime of the tokens it revokes.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist creates an empty denylist.
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Deny revokes key until the given time.
func (d *MemoryDenylist) Deny(key string, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key] = until
}

// IsDenied reports whether key is revoked, pruning it when its entry expired.
func (d *MemoryDenylist) IsDenied(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.entries[key]
	if !ok {
		return false
	}
	if !d.now().Before(until) {
		delete(d.entries, key)
		return false
	}
	return true
}

// Len returns the number of entries, including expired ones not yet pruned.
func (d *MemoryDenylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
