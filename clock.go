package dsig

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock wraps clockwork.Clock, tolerating a nil receiver by falling
// back to the real wall clock. keyprovider's certificate-expiry check
// takes a Clock so tests can land inside or outside a certificate's
// validity window deterministically instead of racing real time.
type Clock struct {
	clock clockwork.Clock
}

// NewFakeClock returns a Clock fixed at t.
func NewFakeClock(t time.Time) *Clock {
	return &Clock{clock: clockwork.NewFakeClockAt(t)}
}

// RealClock returns a Clock backed by the wall clock.
func RealClock() *Clock {
	return &Clock{clock: clockwork.NewRealClock()}
}

// Now returns the current time, treating a nil *Clock as RealClock.
func (c *Clock) Now() time.Time {
	if c == nil || c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}
