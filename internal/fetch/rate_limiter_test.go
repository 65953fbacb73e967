package fetch

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterWaitsBetweenRequestsToSameHost(t *testing.T) {
	rl := NewRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	if err := rl.Wait(ctx, "https://example.se/a"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "https://example.se/b"); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second Wait to the same host returned after %s, want at least ~30ms", elapsed)
	}
}

func TestRateLimiterDoesNotDelayDifferentHosts(t *testing.T) {
	rl := NewRateLimiter(time.Hour, time.Hour)
	ctx := context.Background()

	if err := rl.Wait(ctx, "https://a.example.se/"); err != nil {
		t.Fatalf("Wait a.example.se: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Wait(ctx, "https://b.example.se/") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait b.example.se: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Wait on an unrelated host was delayed by another host's limiter")
	}
}

func TestRateLimiterRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(time.Hour, time.Hour)
	ctx := context.Background()
	if err := rl.Wait(ctx, "https://example.se/"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(cancelCtx, "https://example.se/"); err == nil {
		t.Error("Wait with a cancelled context while already waiting: want error, got nil")
	}
}

func TestSetHostDelayOverridesDefault(t *testing.T) {
	rl := NewRateLimiter(time.Hour, time.Hour)
	rl.SetHostDelay("example.se", time.Millisecond, time.Millisecond)

	ctx := context.Background()
	if err := rl.Wait(ctx, "https://example.se/"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "https://example.se/"); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("second Wait after SetHostDelay took %s, want near-instant", elapsed)
	}
}

func TestRateLimiterIgnoresUnparseableURL(t *testing.T) {
	rl := NewRateLimiter(time.Hour, time.Hour)
	if err := rl.Wait(context.Background(), "://not-a-url"); err != nil {
		t.Errorf("Wait with an unparseable URL: want no error, got %v", err)
	}
}
