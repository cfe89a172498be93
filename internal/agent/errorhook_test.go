package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleError_QuotaAborts(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "Quota exceeded for this account", Context: ErrorContextSystem})
	assert.Equal(t, DecisionAbort, r.Decision)
}

func TestHandleError_RateLimitAbortsWithNote(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "429 rate limit hit", Context: ErrorContextModelCall, Recoverable: true})
	assert.Equal(t, DecisionAbort, r.Decision)
	assert.Contains(t, r.Note, "rate limit reached")
}

func TestHandleError_RecoverableModelCallRetries(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "connection reset", Context: ErrorContextModelCall, Recoverable: true})
	assert.Equal(t, DecisionRetry, r.Decision)
	assert.Equal(t, 2, r.RetryCount)
}

func TestHandleError_ToolExecutionSkips(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "tool blew up", Context: ErrorContextToolExecution})
	assert.Equal(t, DecisionSkip, r.Decision)
}

func TestHandleError_UnknownAborts(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "something weird", Context: ErrorContextUserInput})
	assert.Equal(t, DecisionAbort, r.Decision)
}

func TestHandleError_AuthenticationAbortsEvenIfRecoverable(t *testing.T) {
	r := HandleError(ErrorOccurrence{ErrorText: "Authentication failed", Context: ErrorContextModelCall, Recoverable: true})
	assert.Equal(t, DecisionAbort, r.Decision)
}
