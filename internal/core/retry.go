package core

import (
	"fmt"
	"time"
)

// RetryPolicy defines how failed operations are retried.
// Immutable once constructed; safe to share across calls.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// JitterFraction is the symmetric jitter applied to each computed delay,
	// in [0, 1). 0 disables jitter.
	JitterFraction float64
	// RetryableClasses, when non-empty, restricts retries to these failure
	// classes. Empty means "trust the classification's Retryable flag".
	RetryableClasses []string
}

// DefaultRetryPolicy returns the policy used when callers do not supply one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// Validate reports whether the policy is well formed.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("retry policy: initial_delay must be >= 0, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("retry policy: max_delay %v is below initial_delay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.BackoffMultiplier <= 1 {
		return fmt.Errorf("retry policy: backoff_multiplier must be > 1, got %v", p.BackoffMultiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("retry policy: jitter_fraction must be in [0,1), got %v", p.JitterFraction)
	}
	return nil
}

// allowsRetry reports whether the policy permits retrying a failure of the
// given classification.
func (p RetryPolicy) allowsRetry(c Classification) bool {
	if !c.Retryable {
		return false
	}
	if len(p.RetryableClasses) == 0 {
		return true
	}
	for _, class := range p.RetryableClasses {
		if class == c.Class {
			return true
		}
	}
	return false
}

// WireRetryPolicy is the JSON form of a RetryPolicy as accepted by the HTTP
// API, with intervals as ISO 8601 duration strings.
type WireRetryPolicy struct {
	MaxAttempts       int      `json:"max_attempts"`
	InitialInterval   string   `json:"initial_interval,omitempty"`
	MaxInterval       string   `json:"max_interval,omitempty"`
	BackoffMultiplier float64  `json:"backoff_multiplier,omitempty"`
	JitterFraction    float64  `json:"jitter_fraction,omitempty"`
	RetryableClasses  []string `json:"retryable_classes,omitempty"`
}

// ToPolicy converts the wire form into a RetryPolicy, filling defaults for
// absent fields and validating the result.
func (w *WireRetryPolicy) ToPolicy() (RetryPolicy, error) {
	p := DefaultRetryPolicy()
	if w == nil {
		return p, nil
	}
	if w.MaxAttempts > 0 {
		p.MaxAttempts = w.MaxAttempts
	}
	if w.InitialInterval != "" {
		d, err := ParseISO8601Duration(w.InitialInterval)
		if err != nil {
			return RetryPolicy{}, fmt.Errorf("retry policy: initial_interval: %w", err)
		}
		p.InitialDelay = d
	}
	if w.MaxInterval != "" {
		d, err := ParseISO8601Duration(w.MaxInterval)
		if err != nil {
			return RetryPolicy{}, fmt.Errorf("retry policy: max_interval: %w", err)
		}
		p.MaxDelay = d
	}
	if w.BackoffMultiplier > 0 {
		p.BackoffMultiplier = w.BackoffMultiplier
	}
	if w.JitterFraction > 0 {
		p.JitterFraction = w.JitterFraction
	}
	p.RetryableClasses = w.RetryableClasses
	if err := p.Validate(); err != nil {
		return RetryPolicy{}, err
	}
	return p, nil
}
