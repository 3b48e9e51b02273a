package transport

import (
	"context"
	"math/rand"
	"time"
)

// Pacer inserts a small randomized delay between consecutive per-item
// fetches so the provider does not see bursty request patterns. It is a
// politeness mechanism, not a correctness requirement.
type Pacer struct {
	min   time.Duration
	max   time.Duration
	clock Clock
}

// DefaultPacer pauses between 20ms and 60ms.
func DefaultPacer(clock Clock) *Pacer {
	return NewPacer(20*time.Millisecond, 60*time.Millisecond, clock)
}

// NewPacer creates a Pacer with the given bounds. clock may be nil.
func NewPacer(min, max time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max, clock: clock}
}

// Pause sleeps for a uniform random duration in [min, max]. It returns
// early with the context's error when the context is cancelled.
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil || p.max <= 0 {
		return ctx.Err()
	}
	d := p.min
	if span := p.max - p.min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	return p.clock.Sleep(ctx, d)
}
