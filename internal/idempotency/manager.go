package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/metrics"
	"github.com/opcoord/opcoord/internal/state"
)

// Default record lifetimes. The in-progress TTL is deliberately short: a
// crashed holder is recovered only by expiry, so a long value stalls retries
// of the same logical operation.
const (
	DefaultInProgressTTL = 5 * time.Minute
	DefaultCompletedTTL  = 24 * time.Hour
)

// Manager enforces at-most-one execution per idempotency key and caches
// completed results for replay.
type Manager struct {
	store         state.Store
	executor      *core.Executor
	clock         core.Clock
	logger        *slog.Logger
	inProgressTTL time.Duration
	completedTTL  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTLs overrides the in-progress and completed record lifetimes.
func WithTTLs(inProgress, completed time.Duration) Option {
	return func(m *Manager) {
		m.inProgressTTL = inProgress
		m.completedTTL = completed
	}
}

// NewManager creates a Manager over the given record store.
func NewManager(store state.Store, executor *core.Executor, clock core.Clock, logger *slog.Logger, opts ...Option) *Manager {
	if clock == nil {
		clock = core.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:         store,
		executor:      executor,
		clock:         clock,
		logger:        logger,
		inProgressTTL: DefaultInProgressTTL,
		completedTTL:  DefaultCompletedTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryAcquire atomically creates an in-progress record for key. It returns
// true if the caller now owns execution, false if another execution holds it.
func (m *Manager) TryAcquire(ctx context.Context, key string) (bool, error) {
	err := m.store.CreateInProgress(ctx, key, m.clock.Now().Add(m.inProgressTTL))
	if errors.Is(err, core.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key: %w", err)
	}
	return true, nil
}

// Complete stores the result of a finished execution for replay until the
// completed TTL elapses.
func (m *Manager) Complete(ctx context.Context, key string, result json.RawMessage) error {
	if err := m.store.Complete(ctx, key, result, m.clock.Now().Add(m.completedTTL)); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees the key after a failed execution so a later submission of the
// same logical operation may retry instead of being blocked until expiry.
func (m *Manager) Release(ctx context.Context, key string) error {
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the cached result for a completed key, or ErrNotFound when
// the key is absent, expired, or not yet completed.
func (m *Manager) Lookup(ctx context.Context, key string) (json.RawMessage, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record.State != state.RecordCompleted {
		return nil, core.ErrNotFound
	}
	return record.Result, nil
}

// Sweep removes expired records. Invoked on a fixed schedule by the
// background scheduler; backends with native TTL eviction report 0.
func (m *Manager) Sweep(ctx context.Context) error {
	removed, err := m.store.Sweep(ctx, m.clock.Now())
	if err != nil {
		return fmt.Errorf("sweep idempotency records: %w", err)
	}
	if removed > 0 {
		metrics.SweptRecords.Add(float64(removed))
		m.logger.Debug("swept expired idempotency records", "removed", removed)
	}
	return nil
}

// Submit runs op exactly once per logical identity.
//
// A completed record short-circuits to the cached result. An in-progress
// record surfaces core.ErrDuplicateInProgress as a control signal, never a
// second execution. Otherwise the caller owns the key: the operation runs
// through the retry executor, and the record is completed on success or
// released on failure.
func (m *Manager) Submit(ctx context.Context, operationName string, params map[string]json.RawMessage, op core.Operation, policy core.RetryPolicy) (json.RawMessage, error) {
	key := Fingerprint(operationName, params)

	if cached, err := m.Lookup(ctx, key); err == nil {
		metrics.IdempotencyTotal.WithLabelValues("replayed").Inc()
		m.logger.Debug("replaying cached result", "operation", operationName, "key", key)
		return cached, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	acquired, err := m.TryAcquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// The holder may have completed between lookup and acquire.
		if cached, lookupErr := m.Lookup(ctx, key); lookupErr == nil {
			metrics.IdempotencyTotal.WithLabelValues("replayed").Inc()
			return cached, nil
		}
		metrics.IdempotencyTotal.WithLabelValues("duplicate").Inc()
		return nil, core.ErrDuplicateInProgress
	}
	metrics.IdempotencyTotal.WithLabelValues("acquired").Inc()

	result, err := m.executor.Execute(ctx, op, policy)
	if err != nil {
		if releaseErr := m.Release(ctx, key); releaseErr != nil {
			m.logger.Error("failed to release idempotency key after failure",
				"operation", operationName, "key", key, "error", releaseErr)
		}
		return nil, err
	}

	if err := m.Complete(ctx, key, result); err != nil {
		// The execution succeeded; losing the cache entry only costs replay.
		m.logger.Error("failed to cache completed result",
			"operation", operationName, "key", key, "error", err)
	}
	return result, nil
}
