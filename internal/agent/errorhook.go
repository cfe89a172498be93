package agent

import (
	"log/slog"
	"strings"
)

// ErrorContext identifies where, in the session lifecycle, an error hook
// observation originated.
type ErrorContext string

const (
	ErrorContextModelCall     ErrorContext = "model_call"
	ErrorContextToolExecution ErrorContext = "tool_execution"
	ErrorContextSystem        ErrorContext = "system"
	ErrorContextUserInput     ErrorContext = "user_input"
)

// ErrorDecision is the outcome the error hook reaches for a given error
// occurrence.
type ErrorDecision string

const (
	DecisionAbort ErrorDecision = "abort"
	DecisionRetry ErrorDecision = "retry"
	DecisionSkip  ErrorDecision = "skip"
)

// ErrorOccurrence is one error observation surfaced by the session runtime.
type ErrorOccurrence struct {
	JobID       string
	ErrorText   string
	Context     ErrorContext
	Recoverable bool
}

// ErrorHookResult carries the decision plus any user-visible note and the
// retry budget when the decision is retry.
type ErrorHookResult struct {
	Decision   ErrorDecision
	Note       string
	RetryCount int
}

var abortPatterns = []string{"quota", "402", "not licensed", "authentication"}

const retryCountOnRecoverableModelCall = 2

// HandleError decides abort/retry/skip for one error occurrence according to
// the fixed pattern table, lowercasing the error text for substring
// comparisons, and logs the occurrence at warning level.
func HandleError(occ ErrorOccurrence) ErrorHookResult {
	lowered := strings.ToLower(occ.ErrorText)
	logOccurrence(occ)

	for _, p := range abortPatterns {
		if strings.Contains(lowered, p) {
			return ErrorHookResult{Decision: DecisionAbort}
		}
	}
	if strings.Contains(lowered, "rate limit") || strings.Contains(lowered, "429") {
		return ErrorHookResult{Decision: DecisionAbort, Note: "rate limit reached, retry later"}
	}
	if occ.Context == ErrorContextModelCall && occ.Recoverable {
		return ErrorHookResult{Decision: DecisionRetry, RetryCount: retryCountOnRecoverableModelCall}
	}
	if occ.Context == ErrorContextToolExecution {
		return ErrorHookResult{Decision: DecisionSkip}
	}
	return ErrorHookResult{Decision: DecisionAbort}
}

func logOccurrence(occ ErrorOccurrence) {
	snippet := occ.ErrorText
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	slog.Warn("agent session error occurrence",
		slog.String("job_id", occ.JobID),
		slog.String("context", string(occ.Context)),
		slog.Bool("recoverable", occ.Recoverable),
		slog.String("error", snippet),
	)
}
