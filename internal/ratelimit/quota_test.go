package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrF(f float64) *float64 { return &f }
func ptrB(b bool) *bool       { return &b }

func TestQuotaMonitor_Scenario3(t *testing.T) {
	q := NewQuotaMonitor(10)
	q.Update("U", QuotaSnapshot{RemainingPercent: ptrF(5), IsUnlimited: ptrB(false)})
	r := q.Check("U")
	require.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "quota nearly exhausted")
}

func TestQuotaMonitor_UnlimitedNeverRejects(t *testing.T) {
	q := NewQuotaMonitor(10)
	q.Update("U", QuotaSnapshot{RemainingPercent: ptrF(0), IsUnlimited: ptrB(true)})
	r := q.Check("U")
	assert.True(t, r.Allowed)
}

func TestQuotaMonitor_NoRecordAllows(t *testing.T) {
	q := NewQuotaMonitor(10)
	r := q.Check("never-seen")
	assert.True(t, r.Allowed)
}

func TestQuotaMonitor_AboveThresholdAllows(t *testing.T) {
	q := NewQuotaMonitor(10)
	q.Update("U", QuotaSnapshot{RemainingPercent: ptrF(50)})
	r := q.Check("U")
	assert.True(t, r.Allowed)
}

func TestQuotaMonitor_PartialUpdatePreservesPriorFields(t *testing.T) {
	q := NewQuotaMonitor(10)
	q.Update("U", QuotaSnapshot{RemainingPercent: ptrF(40), UsedRequests: int64Ptr(60)})
	q.Update("U", QuotaSnapshot{RemainingPercent: ptrF(3)})
	r := q.Check("U")
	require.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "60")
}

func int64Ptr(v int64) *int64 { return &v }
