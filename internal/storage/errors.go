package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage marks a retryable storage fault.
	ErrStorage = errors.New("storage error")

	// ErrPoolExhausted is returned when no connection frees up within the acquire timeout.
	ErrPoolExhausted = fmt.Errorf("%w: connection pool exhausted", ErrStorage)

	// ErrConflict is returned when a unique username or email is already taken.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConstraint is returned when a row breaks a foreign key or check
	// constraint. Retrying the same write cannot succeed.
	ErrConstraint = errors.New("constraint violation")
)

func rejected(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConstraint, op, err)
}

func fault(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
