package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoll_TrueImmediately(t *testing.T) {
	var calls int
	err := Poll(context.Background(), 5, time.Millisecond, func(_ context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPoll_TrueAfterRetries(t *testing.T) {
	var calls int
	err := Poll(context.Background(), 5, time.Millisecond, func(_ context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestPoll_Exhaustion(t *testing.T) {
	var calls int
	err := Poll(context.Background(), 4, time.Millisecond, func(_ context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestPoll_PredicateError(t *testing.T) {
	sentinel := errors.New("page gone")
	err := Poll(context.Background(), 5, time.Millisecond, func(_ context.Context) (bool, error) {
		return false, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected predicate error, got %v", err)
	}
}

func TestPoll_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Poll(ctx, 10, 50*time.Millisecond, func(_ context.Context) (bool, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
