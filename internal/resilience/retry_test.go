package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(3), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessOnAttemptK(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(5), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	sentinel := errors.New("always fails")
	var calls int
	err := Do(context.Background(), fastConfig(3), func(_ context.Context) error {
		calls++
		return sentinel
	})
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected the original error, got %v", err)
	}
	if err.Error() != sentinel.Error() {
		t.Errorf("error must not be masked or wrapped: %v", err)
	}
}

func TestDo_BackoffDoubles(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second}
	if got := computeBackoff(0, cfg); got != 10*time.Millisecond {
		t.Errorf("attempt 0: expected 10ms, got %v", got)
	}
	if got := computeBackoff(1, cfg); got != 20*time.Millisecond {
		t.Errorf("attempt 1: expected 20ms, got %v", got)
	}
	if got := computeBackoff(2, cfg); got != 40*time.Millisecond {
		t.Errorf("attempt 2: expected 40ms, got %v", got)
	}
}

func TestDo_BackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 15 * time.Millisecond}
	if got := computeBackoff(4, cfg); got != 15*time.Millisecond {
		t.Errorf("expected capped 15ms, got %v", got)
	}
}

func TestDo_ShouldRetryStopsEarly(t *testing.T) {
	var calls int
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(err error) bool { return false }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("terminal")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 3 {
		t.Errorf("expected <= 3 calls after cancel, got %d", calls)
	}
}

func TestDoVal_PreservesValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastConfig(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("nope")
		}
		return "5,90", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5,90" {
		t.Errorf("expected 5,90, got %q", got)
	}
}
