package wait

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opcoord/opcoord/internal/core"
)

// pollClock advances on every After call and fires immediately, so polling
// tests cover many ticks without real sleeps.
type pollClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newPollClock() *pollClock {
	return &pollClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *pollClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *pollClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waited = append(c.waited, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func newPollingCoordinator(clock *pollClock) *Coordinator {
	cfg := Config{Secret: testSecret}
	executor := core.NewExecutor(clock, nil)
	return NewCoordinator(cfg, executor, clock, nil, nil)
}

// scriptedProbe returns each result in order, then repeats the last one.
func scriptedProbe(results ...ProbeResult) (Probe, *int) {
	calls := new(int)
	return func(context.Context) ProbeResult {
		i := *calls
		*calls++
		if i >= len(results) {
			i = len(results) - 1
		}
		return results[i]
	}, calls
}

func TestWaitPolling_SatisfiedAfterThreeTicks(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, calls := scriptedProbe(
		ContinuePolling(),
		ContinuePolling(),
		Complete(json.RawMessage(`{"state":"ready"}`)),
	)

	outcome := c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        time.Hour,
		Probe:          probe,
	})

	if outcome.Status != core.StatusSatisfied {
		t.Fatalf("Status = %q, want satisfied", outcome.Status)
	}
	if string(outcome.Payload) != `{"state":"ready"}` {
		t.Errorf("Payload = %s, want probe payload", outcome.Payload)
	}
	if *calls != 3 {
		t.Errorf("probe invoked %d times, want 3", *calls)
	}
	if len(c.Sessions()) != 0 {
		t.Error("resolved session still open")
	}
}

func TestWaitPolling_TimesOut(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, calls := scriptedProbe(ContinuePolling())

	outcome := c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        time.Second,
		Probe:          probe,
	})

	if outcome.Status != core.StatusTimedOut {
		t.Fatalf("Status = %q, want timed_out", outcome.Status)
	}
	if outcome.Err != nil {
		t.Errorf("Err = %v, want nil; timeout is an expected outcome", outcome.Err)
	}
	// 1s deadline at the 250ms floor: probes at 0, 250, 500, 750ms and one
	// final probe exactly at the deadline.
	if *calls != 5 {
		t.Errorf("probe invoked %d times, want 5", *calls)
	}
	if outcome.Elapsed != time.Second {
		t.Errorf("Elapsed = %v, want the full 1s window", outcome.Elapsed)
	}
}

func TestWaitPolling_FinalTickShrinksToDeadline(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, calls := scriptedProbe(ContinuePolling())

	outcome := c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        90 * time.Second,
		Probe:          probe,
		PollInterval:   time.Minute,
	})

	if outcome.Status != core.StatusTimedOut {
		t.Fatalf("Status = %q, want timed_out", outcome.Status)
	}
	// The wait must span the whole 90s window, not stop at the last full
	// interval boundary (60s).
	if outcome.Elapsed != 90*time.Second {
		t.Errorf("Elapsed = %v, want 90s", outcome.Elapsed)
	}
	if *calls != 3 {
		t.Errorf("probe invoked %d times, want 3 (0s, 60s, 90s)", *calls)
	}

	clock.mu.Lock()
	waits := append([]time.Duration(nil), clock.waited...)
	clock.mu.Unlock()
	if len(waits) != 2 || waits[0] != time.Minute || waits[1] != 30*time.Second {
		t.Errorf("suspensions = %v, want [1m 30s]", waits)
	}
}

func TestWaitPolling_TerminalStateWithoutMatch(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, _ := scriptedProbe(
		ContinuePolling(),
		TerminalState("deleted"),
	)

	outcome := c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        time.Hour,
		Probe:          probe,
	})

	if outcome.Status != core.StatusTerminalWithoutMatch {
		t.Errorf("Status = %q, want terminal_without_match", outcome.Status)
	}
}

func TestWaitPolling_ProbeBudgetExhausted(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, calls := scriptedProbe(RetryableError(core.NewServerError("upstream down", nil)))

	policy := core.DefaultRetryPolicy()
	policy.MaxAttempts = 2
	policy.JitterFraction = 0

	outcome := c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        time.Hour,
		Probe:          probe,
		ProbePolicy:    policy,
	})

	if outcome.Err == nil {
		t.Fatal("exhausted probe budget reported no error")
	}
	if outcome.Status != core.StatusFailed {
		t.Errorf("Status = %q, want failed; a broken probe is not a cancellation", outcome.Status)
	}
	// One tick, two attempts inside it, then the wait aborts.
	if *calls != 2 {
		t.Errorf("probe invoked %d times, want 2", *calls)
	}
	if len(c.Sessions()) != 0 {
		t.Error("aborted session still open")
	}
}

func TestWaitPolling_IntervalFloor(t *testing.T) {
	clock := newPollClock()
	c := newPollingCoordinator(clock)

	probe, _ := scriptedProbe(
		ContinuePolling(),
		Complete(nil),
	)

	c.Wait(context.Background(), Spec{
		CorrelationKey: "job-1",
		Timeout:        time.Hour,
		Probe:          probe,
		PollInterval:   time.Millisecond,
	})

	clock.mu.Lock()
	defer clock.mu.Unlock()
	for _, d := range clock.waited {
		if d < MinPollInterval {
			t.Errorf("poll suspended for %v, below the %v floor", d, MinPollInterval)
		}
	}
}

func TestWaitPolling_EventResolvesDuringSuspension(t *testing.T) {
	c := newTestCoordinator() // wall clock; suspension is real

	probe, _ := scriptedProbe(ContinuePolling())

	done := make(chan Outcome, 1)
	go func() {
		done <- c.Wait(context.Background(), Spec{
			CorrelationKey: "job-1",
			Timeout:        10 * time.Second,
			Probe:          probe,
			PollInterval:   time.Second,
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Sessions()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(time.Millisecond)
	}

	raw, sig := signedEvent(t, "job-1", "job.finished", `{"ok":true}`)
	if status, err := c.DeliverEvent(raw, sig); err != nil || status != DeliveryAccepted {
		t.Fatalf("DeliverEvent = (%q, %v), want accepted", status, err)
	}

	outcome := <-done
	if outcome.Status != core.StatusSatisfied {
		t.Errorf("Status = %q, want satisfied", outcome.Status)
	}
}
