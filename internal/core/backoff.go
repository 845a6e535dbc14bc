package core

import (
	"math"
	"math/rand"
	"time"
)

// BackoffFor computes the delay before the next attempt.
//
// delay = min(MaxDelay, InitialDelay * BackoffMultiplier^(attempt-1)), then
// symmetric jitter delay ± delay*JitterFraction, clamped to [0, MaxDelay].
// A server-suggested delay from the classification overrides the computed
// value when larger.
func BackoffFor(policy RetryPolicy, attempt int, c Classification) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if max := float64(policy.MaxDelay); delay > max {
		delay = max
	}

	if policy.JitterFraction > 0 {
		// uniform in [-1, 1)
		u := rand.Float64()*2 - 1
		delay += delay * policy.JitterFraction * u
	}

	if delay < 0 {
		delay = 0
	}
	if max := float64(policy.MaxDelay); delay > max {
		delay = max
	}

	result := time.Duration(delay)
	if c.SuggestedDelay > result {
		result = c.SuggestedDelay
	}
	return result
}
