package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// QuotaSnapshot is a partial or full view of an identity's upstream quota,
// as reported asynchronously by usage events from the LLM runtime.
type QuotaSnapshot struct {
	RemainingPercent    *float64
	UsedRequests        *int64
	EntitlementRequests *int64
	IsUnlimited         *bool
	ResetDate           *string
}

type quotaRecord struct {
	remainingPercent    float64
	usedRequests        int64
	entitlementRequests int64
	isUnlimited         bool
	resetDate           string
	lastUpdatedMS       int64
}

const (
	quotaStaleAfterMS = int64(5 * time.Minute / time.Millisecond)
	quotaGCAfterMS    = int64(30 * time.Minute / time.Millisecond)
)

// QuotaMonitor stores the most recent upstream quota snapshot per identity
// and rejects new work once remaining quota falls below the configured
// threshold, with a grace period for stale or missing snapshots.
type QuotaMonitor struct {
	mu             sync.Mutex
	records        map[string]*quotaRecord
	rejectPercent  float64
}

// NewQuotaMonitor builds a monitor that rejects when remaining quota percent
// drops to or below rejectPercent.
func NewQuotaMonitor(rejectPercent float64) *QuotaMonitor {
	return &QuotaMonitor{
		records:       make(map[string]*quotaRecord),
		rejectPercent: rejectPercent,
	}
}

// Update merges a partial snapshot into the stored record, creating one with
// defaults (100/0/-1/false) if none exists. Fields not supplied in partial
// retain their prior value.
func (q *QuotaMonitor) Update(identity string, partial QuotaSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[identity]
	if !ok {
		rec = &quotaRecord{remainingPercent: 100, usedRequests: 0, entitlementRequests: -1, isUnlimited: false}
		q.records[identity] = rec
	}
	if partial.RemainingPercent != nil {
		rec.remainingPercent = *partial.RemainingPercent
	}
	if partial.UsedRequests != nil {
		rec.usedRequests = *partial.UsedRequests
	}
	if partial.EntitlementRequests != nil {
		rec.entitlementRequests = *partial.EntitlementRequests
	}
	if partial.IsUnlimited != nil {
		rec.isUnlimited = *partial.IsUnlimited
	}
	if partial.ResetDate != nil {
		rec.resetDate = *partial.ResetDate
	}
	rec.lastUpdatedMS = nowMS()
}

// Check reports whether identity may start new work. Allowed when there is
// no record, the identity is unlimited, the record is stale (older than 5
// minutes — treated as a grace period rather than a denial), or remaining
// percent exceeds the configured threshold.
func (q *QuotaMonitor) Check(identity string) CheckResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[identity]
	if !ok {
		return allow()
	}
	if rec.isUnlimited {
		return allow()
	}
	if nowMS()-rec.lastUpdatedMS > quotaStaleAfterMS {
		return allow()
	}
	if rec.remainingPercent > q.rejectPercent {
		return allow()
	}
	reason := fmt.Sprintf("quota nearly exhausted: %.1f%% remaining (%d/%d used)",
		rec.remainingPercent, rec.usedRequests, rec.entitlementRequests)
	if rec.resetDate != "" {
		reason += fmt.Sprintf(", resets %s", rec.resetDate)
	}
	return reject(reason, 0)
}

// GC drops entries whose last update is older than 30 minutes.
func (q *QuotaMonitor) GC() {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := nowMS() - quotaGCAfterMS
	for id, rec := range q.records {
		if rec.lastUpdatedMS < cutoff {
			delete(q.records, id)
		}
	}
}
