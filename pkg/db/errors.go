package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write would break a uniqueness rule,
	// e.g. two assignments for the same member on overlapping times
	ErrConflict = errors.New("conflicting record")
)

// ConflictError describes a uniqueness violation reported by a store
type ConflictError struct {
	// Constraint is the name of the violated rule
	Constraint string

	// Detail is the store's description of the offending values
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("conflict on %s", e.Constraint)
	}
	return fmt.Sprintf("conflict on %s: %s", e.Constraint, e.Detail)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
