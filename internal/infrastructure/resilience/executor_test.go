package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		Retries:    retries,
		MinTimeout: 1 * time.Millisecond,
		MaxTimeout: 2 * time.Millisecond,
		Factor:     2,
	}
}

func retryAll(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestRetryReturnsSuccessAfterTwoFailures(t *testing.T) {
	attempts := 0
	errTemp := errors.New("temporary")
	err := Retry(context.Background(), fastPolicy(3), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, retryAll)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrySurfacesLastErrorWhenExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(3), "op", func(context.Context) error {
		attempts++
		return fmt.Errorf("attempt %d failed", attempts)
	}, retryAll)
	if err == nil || err.Error() != "attempt 4 failed" {
		t.Fatalf("expected last attempt error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected retries+1=4 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryPermanentFailure(t *testing.T) {
	attempts := 0
	errPermanent := &HTTPStatusError{Operation: "rewrite", StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}
	err := Retry(context.Background(), fastPolicy(3), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, DefaultClassifier)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, RetryPolicy{Retries: 5, MinTimeout: time.Second, MaxTimeout: time.Second, Factor: 1}, "op", func(context.Context) error {
		attempts++
		cancel()
		return domain.ErrTemporary
	}, retryAll)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected last operation error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	p := RetryPolicy{Retries: 5, MinTimeout: 100 * time.Millisecond, MaxTimeout: 350 * time.Millisecond, Factor: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for attempt, w := range want {
		if got := p.Backoff(attempt); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		Retry:            fastPolicy(0),
		BreakerEnabled:   true,
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("expected IsCircuitOpen to match %v", err)
	}
}

func TestExecuteWithoutBreakerOnlyRetries(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastPolicy(1), BreakerEnabled: false})

	attempts := 0
	for i := 0; i < 10; i++ {
		_ = exec.Execute(context.Background(), "op", func(context.Context) error {
			attempts++
			return domain.ErrTemporary
		}, nil)
	}
	if attempts != 20 {
		t.Fatalf("expected every call to reach the operation twice, got %d attempts", attempts)
	}
}

func TestExecutorKeepsBreakerPerOperation(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastPolicy(0), BreakerEnabled: true, FailureThreshold: 1, ResetTimeout: time.Minute})

	_ = exec.Execute(context.Background(), "rewrite", func(context.Context) error { return domain.ErrTemporary }, nil)
	if exec.Breaker("rewrite").State() != StateOpen {
		t.Fatalf("expected rewrite breaker open")
	}
	if exec.Breaker("embed").State() != StateClosed {
		t.Fatalf("expected embed breaker to stay closed")
	}
}

func TestCallOpensCircuitOnRepeatedUnauthorized(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastPolicy(2), BreakerEnabled: true, FailureThreshold: 3, ResetTimeout: time.Minute})

	calls := 0
	for i := 0; i < 10; i++ {
		_ = exec.Call(context.Background(), "rewrite", func(context.Context) error {
			calls++
			return &HTTPStatusError{StatusCode: http.StatusUnauthorized, Body: "invalid api key"}
		})
	}
	if exec.Breaker("rewrite").State() != StateOpen {
		t.Fatalf("expected repeated 401s to open the breaker, got %s", exec.Breaker("rewrite").State())
	}
	if calls != 3 {
		t.Fatalf("expected 3 provider calls before the circuit opened, got %d", calls)
	}
}

func TestCallPermanentFailureDoesNotResetStreak(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastPolicy(0), BreakerEnabled: true, FailureThreshold: 2, ResetTimeout: time.Minute})

	statuses := []int{http.StatusServiceUnavailable, http.StatusBadRequest}
	for _, status := range statuses {
		_ = exec.Call(context.Background(), "embed", func(context.Context) error {
			return &HTTPStatusError{StatusCode: status}
		})
	}
	if exec.Breaker("embed").State() != StateOpen {
		t.Fatalf("expected 503 then 400 to open the breaker, got %s", exec.Breaker("embed").State())
	}
}

func TestCallIgnoresCancellationInStreak(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastPolicy(0), BreakerEnabled: true, FailureThreshold: 2, ResetTimeout: time.Minute})

	_ = exec.Call(context.Background(), "embed", func(context.Context) error { return domain.ErrTemporary })
	_ = exec.Call(context.Background(), "embed", func(context.Context) error { return context.Canceled })
	if got := exec.Breaker("embed").Failures(); got != 1 {
		t.Fatalf("expected cancellation to leave the streak at 1, got %d", got)
	}
	_ = exec.Call(context.Background(), "embed", func(context.Context) error { return domain.ErrTemporary })
	if exec.Breaker("embed").State() != StateOpen {
		t.Fatalf("expected breaker open after two counted failures")
	}
}
