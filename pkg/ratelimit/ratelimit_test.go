package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWait_DisabledLimiter(t *testing.T) {
	l := New(0, 0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled limiter must not block, took %v", elapsed)
	}
}

func TestWait_PacesRequests(t *testing.T) {
	l := New(50, 0) // 20ms interval

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// First call is immediate, the next three are spaced 20ms apart.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected pacing of at least 40ms over 4 calls, got %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	l := New(0.5, 0) // 2s interval

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestWait_ConcurrentUse(t *testing.T) {
	l := New(1000, 0.5)
	done := make(chan error, 10)

	for i := 0; i < 10; i++ {
		go func() {
			done <- l.Wait(context.Background())
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}
