// Package state defines the idempotency record store and its backends.
package state

import (
	"context"
	"encoding/json"
	"time"
)

// Idempotency record states.
const (
	RecordInProgress = "in_progress"
	RecordCompleted  = "completed"
	RecordFailed     = "failed"
)

// Record is an idempotency record. Owned exclusively by the idempotency
// manager; stores must treat it as opaque beyond the fields they index.
type Record struct {
	Key       string          `json:"key"`
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the record should be treated as absent.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store is the narrow interface the idempotency manager mutates through.
// Every method is a single atomic operation; there is no check-then-act
// surface for callers to race on.
type Store interface {
	// CreateInProgress atomically creates an in-progress record for key if
	// none exists (expired records count as absent). Returns ErrKeyExists
	// when another execution already holds the key.
	CreateInProgress(ctx context.Context, key string, expiresAt time.Time) error

	// Complete overwrites the record with a completed result and a fresh TTL.
	Complete(ctx context.Context, key string, result json.RawMessage, expiresAt time.Time) error

	// Get returns the record for key, or ErrNotFound if absent or expired.
	Get(ctx context.Context, key string) (*Record, error)

	// Delete removes the record for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes records that expired before now and returns how many were
	// removed. Backends with native TTL eviction may return 0.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Ping checks backend health.
	Ping(ctx context.Context) error

	Close() error
}
