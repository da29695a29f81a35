package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicySucceedsAfterFailures(t *testing.T) {
	sleeps := 0
	retries := 0
	policy := RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleep:       func(time.Duration) { sleeps++ },
		OnRetry:     func(int) { retries++ },
	}

	calls := 0
	err := policy.Do(context.Background(), "story", "http://example.test/works/1", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if sleeps != 2 {
		t.Errorf("sleeps = %d, want 2", sleeps)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	wantErr := errors.New("down")
	err := policy.Do(context.Background(), "listing", "http://example.test/search", func() error {
		calls++
		return wantErr
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error chain should include the last attempt error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxAttempts: 5, Sleep: func(time.Duration) {}}
	calls := 0
	err := policy.Do(ctx, "story", "http://example.test/works/1", func() error {
		calls++
		return errors.New("should not matter")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestRetryPolicyMinimumOneAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 0, Sleep: func(time.Duration) {}}
	calls := 0
	err := policy.Do(context.Background(), "download", "http://example.test/d", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
