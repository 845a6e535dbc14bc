package core

// Wait session statuses. A session starts waiting and resolves into exactly
// one terminal status; there are no transitions out of a terminal status.
const (
	StatusWaiting              = "waiting"
	StatusSatisfied            = "satisfied"
	StatusTimedOut             = "timed_out"
	StatusTerminalWithoutMatch = "terminal_without_match"
	StatusCancelled            = "cancelled"
	// StatusFailed marks a wait whose own machinery broke, such as a probe
	// that exhausted its retry budget. Distinct from a caller's cancellation.
	StatusFailed = "failed"
)

var validTransitions = map[string][]string{
	StatusWaiting: {
		StatusSatisfied,
		StatusTimedOut,
		StatusTerminalWithoutMatch,
		StatusCancelled,
		StatusFailed,
	},
	StatusSatisfied:            {},
	StatusTimedOut:             {},
	StatusTerminalWithoutMatch: {},
	StatusCancelled:            {},
	StatusFailed:               {},
}

// IsValidTransition checks whether a session may move from one status to another.
func IsValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a session status is final.
func IsTerminalStatus(status string) bool {
	return status != StatusWaiting && status != ""
}
