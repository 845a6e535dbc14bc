package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock satisfies Clock with an instantly-firing After and a manually
// advanced Now, so executor tests run without real sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waited = append(c.waited, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waited...)
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0,
	}
}

func TestExecute_Success(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)

	calls := 0
	result, err := executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"ok":true}`), nil
	}, fastPolicy(3))

	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("result = %s, want {\"ok\":true}", result)
	}
}

func TestExecute_RetryableFailureInvokedExactlyMaxAttempts(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)

	calls := 0
	_, err := executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, NewServerError("boom", nil)
	}, fastPolicy(4))

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("operation invoked %d times, want 4", calls)
	}
}

func TestExecute_NonRetryableInvokedOnce(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)

	calls := 0
	_, err := executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, NewInputError("bad request", nil)
	}, fastPolicy(5))

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
}

func TestExecute_ReturnsLastFailure(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)

	attempt := 0
	_, err := executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		attempt++
		if attempt < 3 {
			return nil, NewServerError("early failure", nil)
		}
		return nil, NewTimeoutError("final failure", nil)
	}, fastPolicy(3))

	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("error %v is not an *OpError", err)
	}
	if opErr.Class != ClassTimeout {
		t.Errorf("final error class = %q, want %q (the last attempt's failure)", opErr.Class, ClassTimeout)
	}
}

func TestExecute_NoDelayAfterFinalAttempt(t *testing.T) {
	clock := newFakeClock()
	executor := NewExecutor(clock, nil)

	_, _ = executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		return nil, NewServerError("boom", nil)
	}, fastPolicy(3))

	// 3 attempts means exactly 2 suspensions, never one after the last.
	if waits := clock.waits(); len(waits) != 2 {
		t.Errorf("executor suspended %d times, want 2: %v", len(waits), waits)
	}
}

func TestExecute_BackoffDelaysGrow(t *testing.T) {
	clock := newFakeClock()
	executor := NewExecutor(clock, nil)

	_, _ = executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		return nil, NewServerError("boom", nil)
	}, fastPolicy(3))

	waits := clock.waits()
	if len(waits) != 2 {
		t.Fatalf("suspensions = %d, want 2", len(waits))
	}
	if waits[0] != 10*time.Millisecond || waits[1] != 20*time.Millisecond {
		t.Errorf("delays = %v, want [10ms 20ms]", waits)
	}
}

func TestExecute_PolicyClassFilter(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)
	policy := fastPolicy(5)
	policy.RetryableClasses = []string{ClassTimeout}

	calls := 0
	_, _ = executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		calls++
		// Retryable by classification, but filtered out by the policy.
		return nil, NewServerError("boom", nil)
	}, policy)

	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1 (class not in policy set)", calls)
	}
}

func TestExecute_ContextCancelledDuringDelay(t *testing.T) {
	executor := NewExecutor(nil, nil) // real clock

	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy(3)
	policy.InitialDelay = 10 * time.Second
	policy.MaxDelay = 10 * time.Second

	done := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, func(context.Context) (json.RawMessage, error) {
			return nil, NewServerError("boom", nil)
		}, policy)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation during delay")
	}
}

func TestExecute_InvalidPolicy(t *testing.T) {
	executor := NewExecutor(newFakeClock(), nil)

	_, err := executor.Execute(context.Background(), func(context.Context) (json.RawMessage, error) {
		t.Fatal("operation must not run under an invalid policy")
		return nil, nil
	}, RetryPolicy{MaxAttempts: 0})

	if err == nil {
		t.Fatal("expected validation error")
	}
}
