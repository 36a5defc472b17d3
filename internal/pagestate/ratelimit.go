package pagestate

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits at most one screenshot per interval. It never blocks:
// a caller that is refused simply goes without a screenshot.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing one screenshot per interval.
// now may be nil to use the wall clock.
func NewRateLimiter(interval time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     now,
	}
}

// Ticket is an admitted screenshot slot
type Ticket struct {
	res *rate.Reservation
	now func() time.Time
}

// Release hands the slot back, so a failed screenshot does not delay the next one
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.res.CancelAt(t.now())
}

// Acquire returns a ticket if a screenshot is allowed now, or false if the
// last successful screenshot is still within the interval.
func (r *RateLimiter) Acquire() (*Ticket, bool) {
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return nil, false
	}
	if res.DelayFrom(now) > 0 {
		res.CancelAt(now)
		return nil, false
	}
	return &Ticket{res: res, now: r.now}, true
}
