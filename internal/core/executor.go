package core

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/opcoord/opcoord/internal/metrics"
)

// Operation is a single attempt against an external system. It returns an
// opaque payload or a failure that Classify can map to a failure class.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Executor runs operations with bounded retries and exponential backoff.
type Executor struct {
	clock  Clock
	logger *slog.Logger
}

// NewExecutor creates an Executor. A nil clock means the wall clock.
func NewExecutor(clock Clock, logger *slog.Logger) *Executor {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{clock: clock, logger: logger}
}

// Execute runs op under the policy. The delay between attempts is a
// suspension point: the goroutine parks on the clock, it never busy-waits.
// The error returned after exhausting attempts is the last failure observed,
// so the caller sees the most recent cause.
func (e *Executor) Execute(ctx context.Context, op Operation, policy RetryPolicy) (json.RawMessage, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		c := Classify(err)
		metrics.RetryAttempts.WithLabelValues(c.Class).Inc()

		if !policy.allowsRetry(c) || attempt == policy.MaxAttempts {
			return nil, lastErr
		}

		delay := BackoffFor(policy, attempt, c)
		metrics.RetryDelay.Observe(delay.Seconds())
		e.logger.Debug("retrying operation",
			"attempt", attempt,
			"class", c.Class,
			"delay_ms", delay.Milliseconds(),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.clock.After(delay):
		}
	}
	return nil, lastErr
}
