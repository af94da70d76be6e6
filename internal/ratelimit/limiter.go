package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds outbound calls to at most Requests per Window. The bucket
// starts full, so a burst of Requests calls passes immediately and later
// calls wait for refill. A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter allowing requests calls per window, or nil when
// requests or window is not positive (limiting disabled).
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
	}
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
