package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrPermanent        = errors.New("permanent failure")
	ErrTimeout          = errors.New("stage timeout")
	ErrCircuitOpen      = errors.New("circuit open")
	ErrProviderQuota    = errors.New("provider quota exhausted")
	ErrProviderInternal = errors.New("provider internal error")
	ErrRunInProgress    = errors.New("ingestion run already in progress")
	ErrUnknownSource    = errors.New("unknown content source")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
