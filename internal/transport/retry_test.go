package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/testutil"
)

func testExecutor(t *testing.T, cfg RetryConfig) (*Executor, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	e := NewExecutor(cfg, clock, logging.New(logging.ERROR, io.Discard))
	// Deterministic midpoint jitter.
	e.jitter = func() float64 { return 1.0 }
	return e, clock
}

func transientErr(code int) error {
	return &googleapi.Error{Code: code, Message: "upstream"}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	e, clock := testExecutor(t, RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Cap:         8 * time.Second,
	})

	calls := 0
	err := e.Do(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return transientErr(http.StatusServiceUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("recorded %d delays, want 2", len(sleeps))
	}
	// Midpoint jitter makes the schedule exact: base, then base doubled.
	if sleeps[0] != 500*time.Millisecond {
		t.Errorf("first delay = %v, want 500ms", sleeps[0])
	}
	if sleeps[1] != time.Second {
		t.Errorf("second delay = %v, want 1s", sleeps[1])
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	e, clock := testExecutor(t, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Cap: time.Second})

	calls := 0
	wantErr := transientErr(http.StatusTooManyRequests)
	err := e.Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the final transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(clock.Sleeps()) != 2 {
		t.Errorf("recorded %d delays, want 2", len(clock.Sleeps()))
	}
}

func TestDoPermanentErrorFailsImmediately(t *testing.T) {
	e, clock := testExecutor(t, RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Cap: 8 * time.Second})

	calls := 0
	wantErr := &googleapi.Error{Code: http.StatusNotFound}
	err := e.Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 with no retries", calls)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("recorded %d delays, want 0", len(clock.Sleeps()))
	}
}

func TestDoDelayNeverExceedsCap(t *testing.T) {
	e, clock := testExecutor(t, RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		Cap:         time.Second,
	})
	// Upper-bound jitter: even at 1.5x the pre-jitter delay is capped.
	e.jitter = func() float64 { return 1.5 }

	e.Do(context.Background(), func() error {
		return transientErr(http.StatusBadGateway)
	})
	for i, d := range clock.Sleeps() {
		if d > 1500*time.Millisecond {
			t.Errorf("delay %d = %v exceeds jittered cap", i, d)
		}
	}
}

func TestDoCancelledContext(t *testing.T) {
	e, _ := testExecutor(t, RetryConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("op ran %d times on a cancelled context", calls)
	}
}

func TestDoOnRetryObserver(t *testing.T) {
	e, _ := testExecutor(t, RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Cap: time.Second})

	var attempts []int
	e.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
	}
	e.Do(context.Background(), func() error {
		return transientErr(http.StatusInternalServerError)
	})
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("OnRetry attempts = %v, want [1]", attempts)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"rate limited", transientErr(http.StatusTooManyRequests), ClassTransient},
		{"server error", transientErr(http.StatusBadGateway), ClassTransient},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, ClassPermanent},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, ClassPermanent},
		{"plain error", errors.New("boom"), ClassPermanent},
		{"cancelled", context.Canceled, ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(transientErr(http.StatusBadGateway)); got != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", got)
	}
	if got := StatusCode(errors.New("boom")); got != 0 {
		t.Errorf("StatusCode(plain) = %d, want 0", got)
	}
}
