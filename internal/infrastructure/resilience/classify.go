package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// HTTPStatusError is returned by HTTP-based clients for non-2xx responses.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableError reports whether err is a transient failure worth another
// attempt: network errors, retryable HTTP statuses, and provider quota or
// internal errors. Malformed requests and other 4xx fail fast.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsCircuitOpen(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrPermanent) {
		return false
	}
	if errors.Is(err, domain.ErrProviderQuota) ||
		errors.Is(err, domain.ErrProviderInternal) ||
		errors.Is(err, domain.ErrTemporary) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return IsRetryableHTTPStatus(statusErr.StatusCode)
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound || dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// DefaultClassifier retries transient errors and counts every failure
// except caller cancellation against the breaker. Permanent 4xx responses
// count too, so a revoked credential opens the circuit.
func DefaultClassifier(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	return ErrorClassification{
		Retryable:     IsRetryableError(err),
		RecordFailure: true,
	}
}
