// Package transport wraps remote provider calls with error classification,
// bounded retry, and pacing.
package transport

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time and delay sleeping so retry and pacing
// behavior can be tested deterministically.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	// Returns the context's error when cut short.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
