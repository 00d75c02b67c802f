package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestConsumerPoolProcessesAllItems(t *testing.T) {
	items := make(chan int, 10)
	for i := 0; i < 10; i++ {
		items <- i
	}
	close(items)

	var processed int64
	pool := NewConsumerPool(4, items, func(ctx context.Context, item int) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Run(ctx)

	if got := atomic.LoadInt64(&processed); got != 10 {
		t.Errorf("processed %d items, want 10", got)
	}
}

func TestConsumerPoolSurvivesPanic(t *testing.T) {
	items := make(chan int, 3)
	items <- 1
	items <- 2
	items <- 3
	close(items)

	var processed int64
	pool := NewConsumerPool(1, items, func(ctx context.Context, item int) error {
		if item == 2 {
			panic("boom")
		}
		atomic.AddInt64(&processed, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Run(ctx)

	if got := atomic.LoadInt64(&processed); got != 2 {
		t.Errorf("processed %d items, want 2 (one skipped by panic)", got)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryExhausts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, func() error {
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
