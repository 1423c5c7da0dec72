package strategy

import (
	"sync"
	"time"
)

// Cooldowns keeps failed candidates out of selection. Implemented in-memory
// by CooldownTracker and cross-instance by the redis-backed store.
type Cooldowns interface {
	Blocked(key string) bool
	Fail(key string)
	Clear(key string)
}

// CooldownTracker keeps failed candidates out of selection for an
// exponentially growing window. A committed execution clears the entry.
type CooldownTracker struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	entries map[string]cooldownEntry

	now func() time.Time
}

type cooldownEntry struct {
	until   time.Time
	backoff time.Duration
}

func NewCooldownTracker(base, max time.Duration) *CooldownTracker {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max < base {
		max = base
	}
	return &CooldownTracker{
		base:    base,
		max:     max,
		entries: make(map[string]cooldownEntry),
		now:     time.Now,
	}
}

// Blocked reports whether the candidate key is inside its cooldown window.
func (t *CooldownTracker) Blocked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	if t.now().After(e.until) {
		return false
	}
	return true
}

// Fail records a failed execution, doubling the candidate's backoff up to
// the configured maximum.
func (t *CooldownTracker) Fail(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	backoff := t.base
	if e, ok := t.entries[key]; ok {
		backoff = e.backoff * 2
		if backoff > t.max {
			backoff = t.max
		}
	}
	t.entries[key] = cooldownEntry{until: t.now().Add(backoff), backoff: backoff}
}

// Clear removes the candidate's cooldown after a committed execution.
func (t *CooldownTracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Prune drops expired entries so the map does not grow without bound.
func (t *CooldownTracker) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, e := range t.entries {
		if now.After(e.until) {
			delete(t.entries, k)
		}
	}
}
