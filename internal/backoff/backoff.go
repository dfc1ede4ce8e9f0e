// Package backoff centralizes retry delay calculation behind pluggable
// strategies.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempts are 1-based:
// the first retry passes attempt == 1.
type Strategy interface {
	Delay(attempt int, minDelay, maxDelay time.Duration) time.Duration
}

// Exponential doubles the delay per attempt, capped at maxDelay. No jitter is
// added; callers that need herd protection use ExponentialJitter.
type Exponential struct{}

func (Exponential) Delay(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	return capped(attempt, minDelay, maxDelay)
}

// ExponentialJitter is Exponential plus a random additive fraction of the
// computed delay, bounded by the jitter factor.
type ExponentialJitter struct {
	// Jitter is the maximum additional fraction, clamped to [0, 1].
	Jitter float64
}

func (s ExponentialJitter) Delay(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	delay := capped(attempt, minDelay, maxDelay)
	jitter := s.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 {
		delay += time.Duration(float64(delay) * jitter * rand.Float64())
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

func capped(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := minDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay < 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
