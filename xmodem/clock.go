package xmodem

import (
	"context"
	"time"
)

// Clock abstracts time so that the protocol timeouts can be driven
// deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep waits on a timer, returning early with ctx.Err() on cancellation.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// getClock returns c if non-nil, otherwise the system clock.
func getClock(c Clock) Clock {
	if c != nil {
		return c
	}
	return RealClock{}
}
