package jikan

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum interval between outbound upstream requests
// across every caller that shares the instance. All acquisitions serialize
// through the underlying token bucket's own lock, so two overlapping
// Acquire calls can never both be granted within the same interval.
//
// One instance must be shared by all jobs in the process; a second instance
// is a second request-rate ceiling. Cross-process sharing is an open
// operational problem and is intentionally not solved here.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter granting at most one acquisition per
// minInterval, with the first acquisition immediate.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Acquire blocks (parking the goroutine, not a thread) until at least the
// configured interval has elapsed since the previous grant, then records the
// grant and returns. It only fails when ctx is cancelled, in which case no
// grant is consumed beyond the reservation the limiter itself rolls back.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetInterval reconfigures the minimum interval at runtime. Safe under
// concurrent Acquire calls; callers already waiting keep their reservation.
func (r *RateLimiter) SetInterval(minInterval time.Duration) {
	r.limiter.SetLimit(rate.Every(minInterval))
}
