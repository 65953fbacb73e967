package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestShouldRetryHonorsMaxAttempts(t *testing.T) {
	p := NewRetryPolicyFromConfig(2, time.Millisecond, time.Millisecond, 2.0)
	if !p.ShouldRetry(0, 503, nil) {
		t.Error("ShouldRetry(0, 503): want true, attempts remain")
	}
	if p.ShouldRetry(2, 503, nil) {
		t.Error("ShouldRetry(2, 503) with MaxAttempts=2: want false")
	}
}

func TestShouldRetryStatusCodes(t *testing.T) {
	p := NewRetryPolicyFromConfig(5, time.Millisecond, time.Millisecond, 2.0)
	retryable := []int{408, 429, 500, 502, 503, 504}
	for _, code := range retryable {
		if !p.ShouldRetry(0, code, nil) {
			t.Errorf("ShouldRetry(0, %d): want true", code)
		}
	}
	if p.ShouldRetry(0, 404, nil) {
		t.Error("ShouldRetry(0, 404): want false, client errors besides 408/429 are not retryable")
	}
}

func TestShouldRetryDeadlineExceeded(t *testing.T) {
	p := NewRetryPolicyFromConfig(3, time.Millisecond, time.Millisecond, 2.0)
	if !p.ShouldRetry(0, 0, context.DeadlineExceeded) {
		t.Error("ShouldRetry with context.DeadlineExceeded: want true")
	}
	if p.ShouldRetry(0, 0, errors.New("some unrelated error")) {
		t.Error("ShouldRetry with a non-network error and no status code: want false")
	}
}

func TestCalculateBackoffCapsAtMaxBackoff(t *testing.T) {
	p := NewRetryPolicyFromConfig(10, 100*time.Millisecond, 200*time.Millisecond, 4.0)
	backoff := p.CalculateBackoff(5)
	// 100ms * 4^5 would be huge without the cap; allow the ±25% jitter band.
	if backoff > 250*time.Millisecond {
		t.Errorf("CalculateBackoff(5) = %s, want capped near MaxBackoff (200ms +/- 25%%)", backoff)
	}
}

func TestCalculateBackoffNeverNegative(t *testing.T) {
	p := NewRetryPolicyFromConfig(3, time.Millisecond, time.Second, 2.0)
	for i := 0; i < 20; i++ {
		if p.CalculateBackoff(i) < 0 {
			t.Fatalf("CalculateBackoff(%d) returned a negative duration", i)
		}
	}
}

func TestExecuteWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	p := NewRetryPolicyFromConfig(3, time.Millisecond, time.Millisecond, 1.0)
	attempts := 0
	status, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 503, nil
		}
		return 200, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: unexpected error %v", err)
	}
	if status != 200 {
		t.Errorf("ExecuteWithRetry status = %d, want 200", status)
	}
	if attempts != 3 {
		t.Errorf("ExecuteWithRetry made %d attempts, want 3", attempts)
	}
}

func TestExecuteWithRetryGivesUpOnFatalStatus(t *testing.T) {
	p := NewRetryPolicyFromConfig(3, time.Millisecond, time.Millisecond, 1.0)
	attempts := 0
	status, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, error) {
		attempts++
		return 404, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: unexpected error %v", err)
	}
	if status != 404 {
		t.Errorf("ExecuteWithRetry status = %d, want 404", status)
	}
	if attempts != 1 {
		t.Errorf("ExecuteWithRetry made %d attempts on a 404, want 1 (fatal, no retry)", attempts)
	}
}
