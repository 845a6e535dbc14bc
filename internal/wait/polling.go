package wait

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opcoord/opcoord/internal/core"
)

// waitPolling drives the probe at the configured interval until the wait
// resolves. Each tick runs the probe through the retry executor so a single
// transient failure does not abort the whole wait; a tick whose retry budget
// is exhausted does.
func (c *Coordinator) waitPolling(ctx context.Context, spec Spec) Outcome {
	session, err := c.Register(spec)
	if err != nil {
		return Outcome{Status: core.StatusFailed, Err: err}
	}
	start := session.CreatedAt

	interval := spec.PollInterval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	policy := spec.ProbePolicy
	if policy.MaxAttempts == 0 {
		policy = core.DefaultRetryPolicy()
	}

	outcome := func(status string, payload json.RawMessage, err error) Outcome {
		c.resolve(session, status, payload)
		return Outcome{
			Status:  status,
			Payload: payload,
			Elapsed: c.clock.Now().Sub(start),
			Err:     err,
		}
	}

	ticks := 0
	for {
		// Cancellation and session-level cancel are observed every tick.
		select {
		case <-ctx.Done():
			return outcome(core.StatusCancelled, nil, nil)
		case res := <-session.result:
			return Outcome{Status: res.status, Payload: res.payload, Elapsed: c.clock.Now().Sub(start)}
		default:
		}

		var last ProbeResult
		op := func(ctx context.Context) (json.RawMessage, error) {
			last = spec.Probe(ctx)
			if last.Kind == ProbeError {
				return nil, last.Err
			}
			return nil, nil
		}
		if _, err := c.executor.Execute(ctx, op, policy); err != nil {
			return outcome(core.StatusFailed, nil, fmt.Errorf("probe failed past retry budget: %w", err))
		}
		ticks++

		switch last.Kind {
		case ProbeComplete:
			return outcome(core.StatusSatisfied, last.Payload, nil)
		case ProbeTerminal:
			c.logger.Info("watched entity reached terminal state without match",
				"session_id", session.ID,
				"correlation_key", session.CorrelationKey,
				"state", last.State,
				"ticks", ticks,
			)
			return outcome(core.StatusTerminalWithoutMatch, nil, nil)
		}

		now := c.clock.Now()
		if !now.Before(session.Deadline) {
			return outcome(core.StatusTimedOut, nil, nil)
		}

		// Never suspend past the deadline: the final tick shrinks so an
		// inbound event, a cancel, or one last probe can still land inside
		// the full window the caller asked for.
		sleep := interval
		if remaining := session.Deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return outcome(core.StatusCancelled, nil, nil)
		case res := <-session.result:
			return Outcome{Status: res.status, Payload: res.payload, Elapsed: c.clock.Now().Sub(start)}
		case <-c.clock.After(sleep):
		}
	}
}
