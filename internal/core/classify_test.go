package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestClassify_Nil(t *testing.T) {
	c := Classify(nil)
	if c.Class != "" || c.Retryable {
		t.Errorf("Classify(nil) = %+v, want zero classification", c)
	}
}

func TestClassify_CallerMarkedNonRetryableWins(t *testing.T) {
	// A wrapped input error stays non-retryable even when the cause is a
	// transport signal that would otherwise retry.
	cause := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	c := Classify(NonRetryable(cause))
	if c.Retryable {
		t.Error("caller-marked non-retryable failure classified retryable")
	}
	if c.Class != ClassInput {
		t.Errorf("Class = %q, want %q", c.Class, ClassInput)
	}
}

func TestClassify_RateLimitCarriesSuggestedDelay(t *testing.T) {
	c := Classify(NewRateLimitedError("slow down", 7*time.Second))
	if !c.Retryable {
		t.Error("rate-limited failure not retryable")
	}
	if c.SuggestedDelay != 7*time.Second {
		t.Errorf("SuggestedDelay = %v, want 7s", c.SuggestedDelay)
	}
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	c := Classify(fmt.Errorf("probe: %w", context.DeadlineExceeded))
	if c.Class != ClassTimeout || !c.Retryable {
		t.Errorf("Classify(deadline) = {%q retryable=%v}, want timeout retryable", c.Class, c.Retryable)
	}
}

func TestClassify_ConnectionRefused(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	c := Classify(err)
	if c.Class != ClassConnection || !c.Retryable {
		t.Errorf("Classify(ECONNREFUSED) = {%q retryable=%v}, want connection retryable", c.Class, c.Retryable)
	}
}

func TestClassify_DNSFailure(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "upstream.invalid"}
	c := Classify(fmt.Errorf("lookup: %w", err))
	if c.Class != ClassConnection || !c.Retryable {
		t.Errorf("Classify(DNS) = {%q retryable=%v}, want connection retryable", c.Class, c.Retryable)
	}
}

func TestClassify_UnknownFailsClosed(t *testing.T) {
	c := Classify(errors.New("some bug"))
	if c.Class != ClassUnknown {
		t.Errorf("Class = %q, want %q", c.Class, ClassUnknown)
	}
	if c.Retryable {
		t.Error("unknown failure classified retryable; must fail closed")
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		status     int
		retryAfter string
		wantClass  string
		wantRetry  bool
		wantDelay  time.Duration
	}{
		{429, "30", ClassRateLimited, true, 30 * time.Second},
		{429, "", ClassRateLimited, true, 0},
		{408, "", ClassTimeout, true, 0},
		{401, "", ClassAuthorization, false, 0},
		{403, "", ClassAuthorization, false, 0},
		{500, "", ClassServerError, true, 0},
		{503, "", ClassServerError, true, 0},
		{400, "", ClassInput, false, 0},
		{422, "", ClassInput, false, 0},
	}

	for _, tt := range tests {
		err := HTTPError(tt.status, tt.retryAfter)
		if err == nil {
			t.Fatalf("HTTPError(%d) = nil", tt.status)
		}
		if err.Class != tt.wantClass {
			t.Errorf("HTTPError(%d).Class = %q, want %q", tt.status, err.Class, tt.wantClass)
		}
		if err.Retryable != tt.wantRetry {
			t.Errorf("HTTPError(%d).Retryable = %v, want %v", tt.status, err.Retryable, tt.wantRetry)
		}
		if err.SuggestedDelay != tt.wantDelay {
			t.Errorf("HTTPError(%d).SuggestedDelay = %v, want %v", tt.status, err.SuggestedDelay, tt.wantDelay)
		}
	}
}

func TestHTTPError_SuccessStatusesAreNil(t *testing.T) {
	for _, status := range []int{200, 201, 204, 301} {
		if err := HTTPError(status, ""); err != nil {
			t.Errorf("HTTPError(%d) = %v, want nil", status, err)
		}
	}
}
