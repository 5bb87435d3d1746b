package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func stateFrom(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// TransitionFunc is notified after every breaker state change.
type TransitionFunc func(name string, from, to State)

type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	ResetTimeout     time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Errors it rejects are ignored: they neither count nor reset the
	// consecutive failure streak. Nil means every error counts.
	IsFailure    func(err error) bool
	OnTransition TransitionFunc
}

// Breaker is a consecutive-failure circuit breaker. It opens once
// FailureThreshold calls in a row have failed and lets a single probe
// through after ResetTimeout.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreaker(settings BreakerSettings) *Breaker {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = DefaultConfig().FailureThreshold
	}
	resetTimeout := settings.ResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = DefaultConfig().ResetTimeout
	}
	isFailure := settings.IsFailure
	onTransition := settings.OnTransition

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool {
			return err != nil && isFailure != nil && !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", stateFrom(from), "to", stateFrom(to))
			if onTransition != nil {
				onTransition(name, stateFrom(from), stateFrom(to))
			}
		},
	})

	return &Breaker{name: settings.Name, cb: cb}
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state. Reading it after the reset timeout has
// elapsed moves an open breaker to half-open.
func (b *Breaker) State() State {
	return stateFrom(b.cb.State())
}

// Failures is the current consecutive failure count.
func (b *Breaker) Failures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// Execute runs fn unless the breaker is open. A rejected call never invokes
// fn and returns an error matching domain.ErrCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if IsCircuitOpen(err) && !errors.Is(err, domain.ErrCircuitOpen) {
		return domain.WrapError(domain.ErrCircuitOpen, b.name, err)
	}
	return err
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, domain.ErrCircuitOpen)
}
