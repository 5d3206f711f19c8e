package services

import (
	"errors"
	"fmt"

	"github.com/boatfuel/fueltracker/internal/resolver"
	"github.com/boatfuel/fueltracker/internal/store"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound is returned by lookups of a missing record.
	ErrNotFound = store.ErrNotFound
	// ErrResourceUnavailable is returned when no database candidate resolved.
	ErrResourceUnavailable = resolver.ErrResourceUnavailable

	ErrConflict           = store.ErrConflict
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExportDisabled     = errors.New("export storage is not configured")
)

// ValidationError rejects caller input before anything is stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError reports a storage failure while keeping the cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrPersistence, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// storageError classifies a repository failure. Exhausted database lookups
// keep their own identity; anything else becomes a PersistenceError.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrResourceUnavailable) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
