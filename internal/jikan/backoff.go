package jikan

import (
	"math"
	"math/rand"
	"time"
)

const minBackoff = 100 * time.Millisecond

// backoffPolicy computes retry delays. It is pure: given the attempt number
// and an optional server-provided override it returns a duration, so the
// retry flow can be tested without real sleeps.
type backoffPolicy struct {
	base time.Duration
	max  time.Duration
}

// delay returns the wait before retrying after `attempt` failed attempts
// (attempt >= 1). A positive serverHint (the Retry-After value from a 429)
// overrides the computed backoff for that attempt and is returned unjittered.
// Otherwise the delay is exponential (base * 2^(attempt-1)), capped at max,
// with full jitter and a floor to avoid busy-looping.
func (p backoffPolicy) delay(attempt int, serverHint time.Duration) time.Duration {
	if serverHint > 0 {
		return serverHint
	}

	exp := float64(p.base) * math.Pow(2, float64(attempt-1))
	if exp > float64(p.max) {
		exp = float64(p.max)
	}

	jittered := time.Duration(rand.Float64() * exp)
	if jittered < minBackoff {
		jittered = minBackoff
	}
	return jittered
}
