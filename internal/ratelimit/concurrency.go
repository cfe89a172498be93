package ratelimit

import (
	"fmt"
	"sync"
)

// ConcurrencyTracker counts in-flight agent jobs globally and per identity
// key. The sum of per-identity counts always equals the global count; this
// invariant is maintained entirely under mu, never by the callers.
type ConcurrencyTracker struct {
	mu           sync.Mutex
	globalActive int
	perIdentity  map[string]int

	maxGlobal int
	maxUser   int
}

// NewConcurrencyTracker builds a tracker bounded by the given limits.
func NewConcurrencyTracker(maxGlobal, maxUser int) *ConcurrencyTracker {
	return &ConcurrencyTracker{
		perIdentity: make(map[string]int),
		maxGlobal:   maxGlobal,
		maxUser:     maxUser,
	}
}

// CanAcquire reports whether identity may take another concurrency slot,
// without mutating any state. Global capacity is checked before the
// per-identity limit, matching the guard's fixed check ordering.
func (t *ConcurrencyTracker) CanAcquire(identity string) CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.globalActive >= t.maxGlobal {
		return reject("server at maximum capacity, retry in ~10s", 10)
	}
	if t.perIdentity[identity] >= t.maxUser {
		return reject(fmt.Sprintf("you already hold %d concurrent agent jobs (max %d), retry in ~15s", t.perIdentity[identity], t.maxUser), 15)
	}
	return allow()
}

// Acquire increments both counters. Callers must have called CanAcquire
// first; calling Acquire without a successful check is a contract violation
// but will not panic or corrupt the invariant.
func (t *ConcurrencyTracker) Acquire(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.globalActive++
	t.perIdentity[identity]++
}

// Release performs a saturating decrement and removes identity from the map
// once its count reaches zero.
func (t *ConcurrencyTracker) Release(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.globalActive > 0 {
		t.globalActive--
	}
	if n, ok := t.perIdentity[identity]; ok {
		if n <= 1 {
			delete(t.perIdentity, identity)
		} else {
			t.perIdentity[identity] = n - 1
		}
	}
}

// Stats is a point-in-time snapshot of tracker state for observability.
type Stats struct {
	GlobalActive int
	PerIdentity  map[string]int
}

// Stats returns a copy of the current counters.
func (t *ConcurrencyTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make(map[string]int, len(t.perIdentity))
	for k, v := range t.perIdentity {
		cp[k] = v
	}
	return Stats{GlobalActive: t.globalActive, PerIdentity: cp}
}
