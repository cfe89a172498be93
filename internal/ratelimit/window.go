package ratelimit

import (
	"fmt"
	"sync"
)

// SlidingWindowRateLimiter tracks request-admission timestamps per identity
// and globally, pruning entries outside the configured window on every
// check and gc pass.
type SlidingWindowRateLimiter struct {
	mu     sync.Mutex
	global []int64
	byUser map[string][]int64

	windowMS  int64
	maxGlobal int
	maxUser   int
}

// NewSlidingWindowRateLimiter builds a limiter over the given window.
func NewSlidingWindowRateLimiter(windowMS int64, maxGlobal, maxUser int) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		byUser:    make(map[string][]int64),
		windowMS:  windowMS,
		maxGlobal: maxGlobal,
		maxUser:   maxUser,
	}
}

// prune drops every timestamp <= cutoff from seq, returning the pruned slice.
// Timestamps are appended in non-decreasing order, so the cutoff point is
// found with a single forward scan.
func prune(seq []int64, cutoff int64) []int64 {
	i := 0
	for i < len(seq) && seq[i] <= cutoff {
		i++
	}
	if i == 0 {
		return seq
	}
	return append(seq[:0:0], seq[i:]...)
}

func retryAfterFromOldest(oldest, windowMS, now int64) int {
	s := int((oldest + windowMS - now + 999) / 1000)
	if s < 1 {
		s = 1
	}
	return s
}

// Check prunes both sequences against the window and reports whether a new
// admission for identity would fit. Global capacity is evaluated first.
func (l *SlidingWindowRateLimiter) Check(identity string) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := nowMS()
	cutoff := now - l.windowMS

	l.global = prune(l.global, cutoff)
	if len(l.global) >= l.maxGlobal {
		retryAfter := retryAfterFromOldest(l.global[0], l.windowMS, now)
		return reject(fmt.Sprintf("global request rate limit reached, retry in ~%ds", retryAfter), retryAfter)
	}

	seq := prune(l.byUser[identity], cutoff)
	if len(seq) == 0 {
		delete(l.byUser, identity)
	} else {
		l.byUser[identity] = seq
	}
	if len(seq) >= l.maxUser {
		retryAfter := retryAfterFromOldest(seq[0], l.windowMS, now)
		return reject(fmt.Sprintf("request rate limit reached, retry in ~%ds", retryAfter), retryAfter)
	}
	return allow()
}

// Record appends now to both the global and per-identity sequences. It
// should follow a passed Check in the same atomic admission section; see
// the guard's Check-then-Acquire contract.
func (l *SlidingWindowRateLimiter) Record(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := nowMS()
	l.global = append(l.global, now)
	l.byUser[identity] = append(l.byUser[identity], now)
}

// GC prunes all sequences against the current cutoff and deletes empty
// per-identity entries.
func (l *SlidingWindowRateLimiter) GC() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := nowMS() - l.windowMS
	l.global = prune(l.global, cutoff)
	for id, seq := range l.byUser {
		seq = prune(seq, cutoff)
		if len(seq) == 0 {
			delete(l.byUser, id)
		} else {
			l.byUser[id] = seq
		}
	}
}
