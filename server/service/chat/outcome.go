package chat

import "github.com/hrygo/chatkit/plugin/chat/agent"

// Outcome classifies how an invocation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeCancelled means the user cancelled before completion.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFiltered means a content filter suppressed the response.
	OutcomeFiltered Outcome = "filtered"
	// OutcomeError means the invocation failed with nothing shown.
	OutcomeError Outcome = "error"
	// OutcomeErrorWithOutput means it failed after partial output.
	OutcomeErrorWithOutput Outcome = "errorWithOutput"
)

// classifyOutcome maps a terminal invocation state to its outcome.
// Cancellation wins over everything, then filtering, then errors split
// by whether any output had been produced.
func classifyOutcome(cancelled bool, details *agent.ErrorDetails, hasOutput bool) Outcome {
	switch {
	case cancelled:
		return OutcomeCancelled
	case details != nil && details.ResponseIsFiltered:
		return OutcomeFiltered
	case details != nil && hasOutput:
		return OutcomeErrorWithOutput
	case details != nil:
		return OutcomeError
	default:
		return OutcomeSuccess
	}
}
