package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ValidationError reports a domain rule violation on a single field. It is
// safe to show to users.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a failed database operation. Callers may retry; the
// underlying transaction has been rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// InitError reports a startup failure (opening the database, running
// migrations). It is not recoverable at runtime.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// storageErr wraps err in a StorageError unless it is nil or already one of
// the typed domain errors, which pass through unchanged.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || IsValidation(err) {
		return err
	}
	var se StorageError
	if errors.As(err, &se) {
		return err
	}
	return StorageError{Op: op, Err: err}
}
