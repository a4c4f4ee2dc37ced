package order

import (
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
)

var (
	// ErrValidation is returned before any side effect; the caller may fix
	// the input and retry.
	ErrValidation = errors.New("order: validation failed")
	// ErrDomainState rejects an operation the order's current status forbids.
	ErrDomainState = errors.New("order: operation not allowed in current state")
	ErrNotFound    = domain.ErrNotFound
	ErrConflict    = domain.ErrConflict
	ErrRepository  = errors.New("order: repository failure")
)

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func wrapValidation(cause error) error {
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

func newDomainState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDomainState, fmt.Sprintf(format, args...))
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
