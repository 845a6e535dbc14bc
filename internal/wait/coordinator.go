// Package wait suspends logical units of work until a named condition is
// observed, either by polling a caller-supplied probe or by correlating an
// inbound out-of-band notification.
package wait

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/metrics"
)

// MinPollInterval is the floor for polling ticks so a misconfigured caller
// cannot hammer the external system.
const MinPollInterval = 250 * time.Millisecond

// Delivery statuses for inbound notifications.
const (
	DeliveryAccepted          = "accepted"
	DeliveryRejectedSignature = "rejected_signature"
	DeliveryNoMatch           = "no_match"
)

// Outcome is the result of a wait. Expected terminal conditions (timeout,
// terminal state, cancellation) are statuses, not errors; Err is set only for
// genuine failures such as an exhausted probe retry budget.
type Outcome struct {
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Elapsed time.Duration   `json:"-"`
	Err     error           `json:"-"`
}

// Spec describes one wait.
type Spec struct {
	CorrelationKey string
	// Timeout bounds the whole wait. Required.
	Timeout time.Duration
	// ExpectedEvents restricts which inbound event types satisfy the wait.
	// Empty means any event for the correlation key satisfies it.
	ExpectedEvents []string
	// Probe switches the wait to the polling strategy when non-nil.
	Probe        Probe
	PollInterval time.Duration
	// ProbePolicy is the per-tick retry policy for probe calls.
	ProbePolicy core.RetryPolicy
}

// InboundEvent is a parsed out-of-band notification. Transient: consumed by
// correlation matching and not kept beyond the matching attempt.
type InboundEvent struct {
	CorrelationKey string          `json:"correlation_key"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type resolution struct {
	status  string
	payload json.RawMessage
}

// Session is one registered wait. The deadline is immutable once set; only
// the status (guarded by the coordinator's registry lock) mutates.
type Session struct {
	ID             string    `json:"session_id"`
	CorrelationKey string    `json:"correlation_key"`
	ExpectedEvents []string  `json:"expected_events,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Deadline       time.Time `json:"deadline"`

	status string
	result chan resolution
}

func (s *Session) expects(eventType string) bool {
	if len(s.ExpectedEvents) == 0 {
		return true
	}
	for _, t := range s.ExpectedEvents {
		if t == eventType {
			return true
		}
	}
	return false
}

// Config holds coordinator construction parameters.
type Config struct {
	// Secret is the shared webhook signing secret.
	Secret []byte
	// TerminalEvents are event types that end the watched entity's lifecycle.
	// A correlated terminal event that the session did not expect resolves it
	// terminal_without_match instead of satisfied.
	TerminalEvents []string
}

// Coordinator owns the wait-session registry and resolves sessions from
// polling ticks and inbound notifications.
type Coordinator struct {
	cfg       Config
	executor  *core.Executor
	clock     core.Clock
	logger    *slog.Logger
	publisher core.EventPublisher

	registry *registry
}

// NewCoordinator creates a Coordinator. publisher may be nil to disable
// real-time event publication.
func NewCoordinator(cfg Config, executor *core.Executor, clock core.Clock, logger *slog.Logger, publisher core.EventPublisher) *Coordinator {
	if clock == nil {
		clock = core.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		executor:  executor,
		clock:     clock,
		logger:    logger,
		publisher: publisher,
		registry:  newRegistry(),
	}
}

// Wait suspends until the condition named by spec resolves, the deadline
// elapses, or ctx is cancelled.
func (c *Coordinator) Wait(ctx context.Context, spec Spec) Outcome {
	if spec.Timeout <= 0 {
		return Outcome{Status: core.StatusFailed, Err: fmt.Errorf("wait: timeout must be positive")}
	}
	if spec.Probe != nil {
		return c.waitPolling(ctx, spec)
	}
	return c.waitWebhook(ctx, spec)
}

// Register creates a waiting session for spec and returns it without
// blocking. The caller resumes via the session's resolution, delivered when a
// correlated event arrives or the reaper times the session out.
func (c *Coordinator) Register(spec Spec) (*Session, error) {
	if spec.CorrelationKey == "" {
		return nil, core.NewInputError("correlation_key is required", nil)
	}
	now := c.clock.Now()
	session := &Session{
		ID:             core.NewID(),
		CorrelationKey: spec.CorrelationKey,
		ExpectedEvents: spec.ExpectedEvents,
		CreatedAt:      now,
		Deadline:       now.Add(spec.Timeout),
		status:         core.StatusWaiting,
		result:         make(chan resolution, 1),
	}
	c.registry.add(session)
	metrics.WaitSessions.Inc()
	c.publish(core.NewSessionEvent(core.EventSessionRegistered, session.ID, session.CorrelationKey, core.StatusWaiting))
	c.logger.Debug("wait session registered",
		"session_id", session.ID,
		"correlation_key", session.CorrelationKey,
		"deadline", session.Deadline,
	)
	return session, nil
}

// Cancel resolves an open session as cancelled. Late events for its key are
// discarded as stale afterwards.
func (c *Coordinator) Cancel(sessionID string) error {
	session, ok := c.registry.byID(sessionID)
	if !ok {
		return core.ErrNotFound
	}
	if !c.resolve(session, core.StatusCancelled, nil) {
		return core.ErrNotFound
	}
	return nil
}

// Sessions lists the currently open sessions.
func (c *Coordinator) Sessions() []*Session {
	return c.registry.list()
}

// Reap times out sessions whose deadline has passed. Covers sessions whose
// waiter is gone; a live waiter resolves its own timeout first.
func (c *Coordinator) Reap(ctx context.Context) error {
	now := c.clock.Now()
	for _, session := range c.registry.list() {
		if now.After(session.Deadline) {
			if c.resolve(session, core.StatusTimedOut, nil) {
				c.logger.Debug("reaped overdue wait session", "session_id", session.ID)
			}
		}
	}
	return ctx.Err()
}

// DeliverEvent verifies and correlates a raw inbound notification.
//
// Verification happens before any parsing or matching; an event that fails
// the signature check never reaches the matcher. An event with no open
// session is discarded — it may belong to a session not yet registered or
// already resolved, which is not an error.
func (c *Coordinator) DeliverEvent(rawBytes []byte, signatureHeader string) (string, error) {
	if !VerifySignature(rawBytes, signatureHeader, c.cfg.Secret) {
		metrics.EventsTotal.WithLabelValues(DeliveryRejectedSignature).Inc()
		c.logger.Warn("rejected inbound event with invalid signature")
		return DeliveryRejectedSignature, nil
	}

	var event InboundEvent
	if err := json.Unmarshal(rawBytes, &event); err != nil {
		metrics.EventsTotal.WithLabelValues(DeliveryNoMatch).Inc()
		return DeliveryNoMatch, core.NewInputError("malformed event payload", nil)
	}
	if event.CorrelationKey == "" {
		metrics.EventsTotal.WithLabelValues(DeliveryNoMatch).Inc()
		return DeliveryNoMatch, core.NewInputError("event missing correlation_key", nil)
	}

	// Single atomic lookup against the open set; registration interleaving
	// with delivery either sees the session or it does not. There is no
	// replay of discarded events.
	session, ok := c.registry.matchOldest(event.CorrelationKey)
	if !ok {
		metrics.EventsTotal.WithLabelValues(DeliveryNoMatch).Inc()
		c.publish(&core.CoordinatorEvent{
			EventType:      core.EventInboundDiscarded,
			CorrelationKey: event.CorrelationKey,
			Reason:         "no open session",
			Timestamp:      core.NowFormatted(),
		})
		c.logger.Debug("discarding uncorrelated event",
			"correlation_key", event.CorrelationKey,
			"event_type", event.EventType,
		)
		return DeliveryNoMatch, nil
	}

	status := core.StatusSatisfied
	if !session.expects(event.EventType) {
		if !c.isTerminalEvent(event.EventType) {
			// Not what the session expects and not the end of the entity's
			// lifecycle; keep waiting.
			metrics.EventsTotal.WithLabelValues(DeliveryNoMatch).Inc()
			c.logger.Debug("ignoring unexpected event type for open session",
				"session_id", session.ID, "event_type", event.EventType)
			return DeliveryNoMatch, nil
		}
		status = core.StatusTerminalWithoutMatch
	}

	if !c.resolve(session, status, event.Payload) {
		// Session resolved between lookup and resolve; the event is stale.
		metrics.EventsTotal.WithLabelValues("stale").Inc()
		c.logger.Debug("discarding stale event", "session_id", session.ID)
		return DeliveryNoMatch, nil
	}

	metrics.EventsTotal.WithLabelValues(DeliveryAccepted).Inc()
	return DeliveryAccepted, nil
}

func (c *Coordinator) isTerminalEvent(eventType string) bool {
	for _, t := range c.cfg.TerminalEvents {
		if t == eventType {
			return true
		}
	}
	return false
}

// resolve is the single mutation point for session status. It reports false
// when the session had already resolved.
func (c *Coordinator) resolve(session *Session, status string, payload json.RawMessage) bool {
	if !c.registry.resolve(session, status) {
		return false
	}
	session.result <- resolution{status: status, payload: payload}

	elapsed := c.clock.Now().Sub(session.CreatedAt)
	metrics.WaitSessions.Dec()
	metrics.WaitDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	c.publish(core.NewSessionEvent(core.EventSessionResolved, session.ID, session.CorrelationKey, status))
	return true
}

func (c *Coordinator) publish(event *core.CoordinatorEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(event); err != nil {
		c.logger.Warn("failed to publish coordinator event", "error", err)
	}
}

// waitWebhook registers a session and suspends on its resolution channel.
// No polling goroutine is consumed while waiting.
func (c *Coordinator) waitWebhook(ctx context.Context, spec Spec) Outcome {
	session, err := c.Register(spec)
	if err != nil {
		return Outcome{Status: core.StatusFailed, Err: err}
	}
	start := session.CreatedAt

	select {
	case res := <-session.result:
		return Outcome{Status: res.status, Payload: res.payload, Elapsed: c.clock.Now().Sub(start)}
	case <-c.clock.After(spec.Timeout):
		if c.resolve(session, core.StatusTimedOut, nil) {
			return Outcome{Status: core.StatusTimedOut, Elapsed: c.clock.Now().Sub(start)}
		}
		// Lost the race to an arriving event; take its resolution.
		res := <-session.result
		return Outcome{Status: res.status, Payload: res.payload, Elapsed: c.clock.Now().Sub(start)}
	case <-ctx.Done():
		if c.resolve(session, core.StatusCancelled, nil) {
			return Outcome{Status: core.StatusCancelled, Elapsed: c.clock.Now().Sub(start)}
		}
		res := <-session.result
		return Outcome{Status: res.status, Payload: res.payload, Elapsed: c.clock.Now().Sub(start)}
	}
}
