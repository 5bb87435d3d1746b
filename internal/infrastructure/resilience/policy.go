package resilience

import "time"

// RetryPolicy describes bounded exponential backoff. The delay before retry
// n (0-based) is min(MaxTimeout, MinTimeout*Factor^n).
type RetryPolicy struct {
	Retries    int
	MinTimeout time.Duration
	MaxTimeout time.Duration
	Factor     float64
}

type Config struct {
	Retry RetryPolicy

	BreakerEnabled   bool
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:    2,
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: 1 * time.Second,
		Factor:     2.0,
	}
}

func DefaultConfig() Config {
	return Config{
		Retry: DefaultRetryPolicy(),

		BreakerEnabled:   true,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	out := p
	def := DefaultRetryPolicy()

	if out.Retries < 0 {
		out.Retries = 0
	}
	if out.MinTimeout <= 0 {
		out.MinTimeout = def.MinTimeout
	}
	if out.MaxTimeout <= 0 {
		out.MaxTimeout = def.MaxTimeout
	}
	if out.MaxTimeout < out.MinTimeout {
		out.MaxTimeout = out.MinTimeout
	}
	if out.Factor < 1.0 {
		out.Factor = def.Factor
	}
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	out.Retry = out.Retry.normalize()
	if out.FailureThreshold == 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = def.ResetTimeout
	}
	return out
}
