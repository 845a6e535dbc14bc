package core

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes used to decide retry behavior.
const (
	ClassInput         = "input"
	ClassAuthorization = "authorization"
	ClassRateLimited   = "rate_limited"
	ClassServerError   = "server_error"
	ClassTimeout       = "timeout"
	ClassConnection    = "connection"
	ClassUnknown       = "unknown"
)

// Control signals. These are not failures; callers branch on them.
var (
	// ErrDuplicateInProgress is returned when an idempotent submission finds
	// another execution already holding the same key.
	ErrDuplicateInProgress = errors.New("duplicate operation in progress")

	// ErrKeyExists is returned by stores when a conditional create loses the race.
	ErrKeyExists = errors.New("key already exists")

	// ErrNotFound is returned by stores and registries for absent records.
	ErrNotFound = errors.New("not found")
)

// OpError is a classified operation failure.
type OpError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
	// Retryable reports whether the executor may attempt the operation again.
	Retryable bool `json:"retryable"`
	// SuggestedDelay carries a server-provided delay (e.g. Retry-After) that
	// overrides computed backoff when larger.
	SuggestedDelay time.Duration  `json:"-"`
	Details        map[string]any `json:"details,omitempty"`
	Cause          error          `json:"-"`
}

func (e *OpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Cause
}

func NewInputError(message string, details map[string]any) *OpError {
	return &OpError{Class: ClassInput, Message: message, Retryable: false, Details: details}
}

func NewAuthorizationError(message string) *OpError {
	return &OpError{Class: ClassAuthorization, Message: message, Retryable: false}
}

func NewRateLimitedError(message string, suggestedDelay time.Duration) *OpError {
	return &OpError{Class: ClassRateLimited, Message: message, Retryable: true, SuggestedDelay: suggestedDelay}
}

func NewServerError(message string, cause error) *OpError {
	return &OpError{Class: ClassServerError, Message: message, Retryable: true, Cause: cause}
}

func NewTimeoutError(message string, cause error) *OpError {
	return &OpError{Class: ClassTimeout, Message: message, Retryable: true, Cause: cause}
}

func NewConnectionError(message string, cause error) *OpError {
	return &OpError{Class: ClassConnection, Message: message, Retryable: true, Cause: cause}
}

// NonRetryable wraps err so the executor will not attempt it again,
// regardless of how the transport signal would otherwise classify.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Class: ClassInput, Message: "non-retryable", Retryable: false, Cause: err}
}
