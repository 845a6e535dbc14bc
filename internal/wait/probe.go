package wait

import (
	"context"
	"encoding/json"
)

// ProbeKind tags the variant of a ProbeResult.
type ProbeKind int

const (
	// ProbeContinue means the condition is not yet reached; poll again.
	ProbeContinue ProbeKind = iota
	// ProbeComplete means the condition is satisfied; Payload carries the result.
	ProbeComplete
	// ProbeTerminal means the watched entity reached a state from which the
	// expected outcome can no longer happen. State names it.
	ProbeTerminal
	// ProbeError means the probe itself failed; Err carries the cause and the
	// per-tick retry policy decides whether it is retried.
	ProbeError
)

// ProbeResult is the tagged outcome of a single polling tick.
type ProbeResult struct {
	Kind    ProbeKind
	Payload json.RawMessage
	State   string
	Err     error
}

// Probe inspects the watched entity once per polling tick.
type Probe func(ctx context.Context) ProbeResult

// Complete builds a satisfied probe result.
func Complete(payload json.RawMessage) ProbeResult {
	return ProbeResult{Kind: ProbeComplete, Payload: payload}
}

// ContinuePolling builds a not-yet probe result.
func ContinuePolling() ProbeResult {
	return ProbeResult{Kind: ProbeContinue}
}

// TerminalState builds a terminal-without-match probe result.
func TerminalState(state string) ProbeResult {
	return ProbeResult{Kind: ProbeTerminal, State: state}
}

// RetryableError builds a failed probe result.
func RetryableError(err error) ProbeResult {
	return ProbeResult{Kind: ProbeError, Err: err}
}
