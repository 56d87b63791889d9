package service

import (
	"errors"
	"fmt"

	"vereinskasse/backend/internal/store"
)

var (
	ErrEmptyBasket    = errors.New("basket is empty")
	ErrNothingToClose = errors.New("nothing to close for this day")
	ErrInvalidInput   = errors.New("invalid input")

	// ErrAlreadyClosed is the store sentinel so callers can match either.
	ErrAlreadyClosed = store.ErrAlreadyClosed
)

// PersistenceError reports a failed read or write against the repository.
// The basket or form the caller holds is still valid and can be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
