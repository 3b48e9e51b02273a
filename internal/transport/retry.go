package transport

import (
	"context"
	"math/rand"
	"time"

	"github.com/meridian-hq/meridian/internal/logging"
)

// RetryConfig bounds the retry loop. Zero values fall back to defaults.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Cap         time.Duration `json:"cap"`
}

// DefaultRetryConfig returns the standard bounds: 3 attempts, 0.5s base,
// 8s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Cap:         8 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.Cap <= 0 {
		c.Cap = d.Cap
	}
	return c
}

// Executor runs single remote calls with bounded exponential backoff plus
// jitter on transient failures. Permanent failures propagate immediately.
type Executor struct {
	cfg   RetryConfig
	clock Clock
	log   *logging.Logger

	// OnRetry, if set, observes every scheduled retry. Used by tests and
	// metrics hooks.
	OnRetry func(attempt int, delay time.Duration, err error)

	// jitter returns a uniform factor in [0.5, 1.5).
	jitter func() float64
}

// NewExecutor creates an Executor. clock and log may be nil, in which case
// the system clock and default logger are used.
func NewExecutor(cfg RetryConfig, clock Clock, log *logging.Logger) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Named("transport")
	}
	return &Executor{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		log:    log,
		jitter: func() float64 { return 0.5 + rand.Float64() },
	}
}

// Do executes op, retrying on transient failures until the attempt budget is
// exhausted. op must perform exactly one network call; results are captured
// by the closure.
func (e *Executor) Do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = op()
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.MaxAttempts || !IsTransient(err) {
			return err
		}

		delay := e.backoff(attempt)
		e.log.WithFields(
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "max_attempts", Value: e.cfg.MaxAttempts},
			logging.Field{Key: "delay", Value: delay.Round(time.Millisecond)},
			logging.Field{Key: "class", Value: Classify(err)},
		).Warn("retrying after transient error: %v", err)
		if e.OnRetry != nil {
			e.OnRetry(attempt, delay, err)
		}
		if sleepErr := e.clock.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

// backoff computes min(cap, base*2^(attempt-1)) scaled by jitter in [0.5, 1.5).
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.cfg.BaseDelay << (attempt - 1)
	if delay > e.cfg.Cap || delay <= 0 {
		delay = e.cfg.Cap
	}
	return time.Duration(float64(delay) * e.jitter())
}
