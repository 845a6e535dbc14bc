package core

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Classification describes how a failure should be treated by the executor.
type Classification struct {
	Class          string
	Retryable      bool
	SuggestedDelay time.Duration
	Err            error
}

// Classify maps a failure to its class and retryability.
//
// Priority order: caller-marked non-retryable failures win over any transport
// signal; explicit rate-limit signals are retryable and may carry a suggested
// delay; 5xx-equivalent failures are retryable; timeouts and connection
// failures are retryable; anything unrecognized is not retried, so bugs do
// not get masked as transient noise.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		return Classification{
			Class:          opErr.Class,
			Retryable:      opErr.Retryable,
			SuggestedDelay: opErr.SuggestedDelay,
			Err:            err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Class: ClassTimeout, Retryable: true, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Class: ClassTimeout, Retryable: true, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Class: ClassConnection, Retryable: true, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return Classification{Class: ClassConnection, Retryable: true, Err: err}
	}
	var netOpErr *net.OpError
	if errors.As(err, &netOpErr) {
		return Classification{Class: ClassConnection, Retryable: true, Err: err}
	}

	// Fail closed: unknown errors are not retried.
	return Classification{Class: ClassUnknown, Retryable: false, Err: err}
}

// HTTPError classifies an HTTP status code from an external system.
// retryAfter is the raw Retry-After header value, seconds or empty.
func HTTPError(status int, retryAfter string) *OpError {
	switch {
	case status == 429:
		var delay time.Duration
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			delay = time.Duration(secs) * time.Second
		}
		return NewRateLimitedError("rate limited by upstream", delay)
	case status == 408:
		return NewTimeoutError("upstream request timeout", nil)
	case status == 401 || status == 403:
		return NewAuthorizationError("upstream rejected credentials")
	case status >= 500:
		return &OpError{
			Class:     ClassServerError,
			Message:   "upstream server error",
			Retryable: true,
			Details:   map[string]any{"status": status},
		}
	case status >= 400:
		return NewInputError("upstream rejected request", map[string]any{"status": status})
	default:
		return nil
	}
}
