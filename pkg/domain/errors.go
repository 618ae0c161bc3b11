package domain

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable reports that the local store could not be opened or
// has been closed. Use errors.Is to detect it.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// ErrNotFound is returned when a keyed record does not exist or has been
// tombstoned.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IsNotFound reports whether err carries an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ConflictError is returned when a unique field is already taken.
type ConflictError struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// ValidationError is returned before any write when input is unusable.
type ValidationError struct {
	Entity  EntityType
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Message)
}

// StorageUnavailableError wraps the backend failure behind
// ErrStorageUnavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e StorageUnavailableError) Error() string {
	if e.Cause == nil {
		return ErrStorageUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrStorageUnavailable.Error(), e.Cause)
}

// Unwrap exposes both the sentinel and the backend cause.
func (e StorageUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrStorageUnavailable}
	}
	return []error{ErrStorageUnavailable, e.Cause}
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
