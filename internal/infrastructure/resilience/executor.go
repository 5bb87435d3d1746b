package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Executor owns one circuit breaker per named operation and runs calls as
// breaker(retry(fn)).
type Executor struct {
	cfg          Config
	onTransition TransitionFunc

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*Breaker),
	}
}

// OnTransition registers a hook for breakers created after the call.
func (e *Executor) OnTransition(fn TransitionFunc) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTransition = fn
	return e
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = DefaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return Retry(ctx, e.cfg.Retry, op, fn, classifier)
	}

	breaker := e.breaker(op, classifier)
	return breaker.Execute(ctx, func(ctx context.Context) error {
		return Retry(ctx, e.cfg.Retry, op, fn, classifier)
	})
}

// Call runs fn through Execute with the default classifier.
func (e *Executor) Call(ctx context.Context, operation string, fn func(context.Context) error) error {
	return e.Execute(ctx, operation, fn, nil)
}

// Breaker returns the breaker for operation, creating it on first use.
func (e *Executor) Breaker(operation string) *Breaker {
	return e.breaker(operation, DefaultClassifier)
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := NewBreaker(BreakerSettings{
		Name:             operation,
		FailureThreshold: e.cfg.FailureThreshold,
		ResetTimeout:     e.cfg.ResetTimeout,
		IsFailure: func(err error) bool {
			return classifier(err).RecordFailure
		},
		OnTransition: e.onTransition,
	})
	e.breakers[operation] = breaker
	return breaker
}

// Retry invokes fn and retries retryable failures up to policy.Retries more
// times. The last error is returned once the budget is spent.
func Retry(
	ctx context.Context,
	policy RetryPolicy,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	policy = policy.normalize()
	if classifier == nil {
		classifier = DefaultClassifier
	}
	maxAttempts := policy.Retries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		class := classifier(lastErr)
		if !class.Retryable || attempt == maxAttempts-1 {
			return lastErr
		}

		wait := policy.Backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", lastErr,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}

// Backoff is the delay before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalize()
	delay := float64(p.MinTimeout) * math.Pow(p.Factor, float64(attempt))
	if delay > float64(p.MaxTimeout) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return p.MaxTimeout
	}
	return time.Duration(delay)
}
