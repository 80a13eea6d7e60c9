package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastRetry = RetryConfig{
	MaxAttempts:  4,
	InitialDelay: time.Millisecond,
	MaxDelay:     2 * time.Millisecond,
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastRetry, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Retry(context.Background(), "test", fastRetry, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if calls != fastRetry.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, fastRetry.MaxAttempts)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Retry(context.Background(), "test", fastRetry, func() error {
		calls++
		return Permanent(sentinel)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, sentinel) || !IsPermanent(err) {
		t.Errorf("err = %v", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestRetryAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, "test", fastRetry, func() error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2, JitterFraction: 0.1}
	if d := computeDelay(10, cfg); d != 3*time.Second {
		t.Errorf("delay = %v, want cap", d)
	}
	if d := computeDelay(1, cfg); d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("delay = %v, want ~1s", d)
	}
}
