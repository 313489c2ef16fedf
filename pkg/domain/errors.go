package domain

import (
	"errors"
	"fmt"
)

// Storage-layer error taxonomy. Backends translate driver-specific failures
// into these sentinels so callers can branch with errors.Is regardless of the
// engine in use.
var (
	// ErrMissingRequiredField reports a non-nullable column left empty.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrForeignKeyViolation reports a reference to a row that does not exist.
	ErrForeignKeyViolation = errors.New("foreign key violation")
	// ErrTypeMismatch reports a value incompatible with the column's semantic type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrPolicyViolation reports a mutually exclusive pair of fields both set.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrNotFound reports a lookup by identity that matched nothing.
	ErrNotFound = errors.New("not found")
)

// ConstraintViolation describes an insert rejected by the schema.
type ConstraintViolation struct {
	Entity EntityType
	Field  string
	Err    error
	Detail string
}

func (e *ConstraintViolation) Error() string {
	msg := fmt.Sprintf("%s.%s: %v", e.Entity, e.Field, e.Err)
	if e.Field == "" {
		msg = fmt.Sprintf("%s: %v", e.Entity, e.Err)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes the taxonomy sentinel.
func (e *ConstraintViolation) Unwrap() error { return e.Err }

func violation(entity EntityType, field string, err error, detail string) *ConstraintViolation {
	return &ConstraintViolation{Entity: entity, Field: field, Err: err, Detail: detail}
}

// NewForeignKeyViolation builds the error backends return when a referenced
// row is absent.
func NewForeignKeyViolation(entity EntityType, field string, id int64) error {
	return violation(entity, field, ErrForeignKeyViolation, fmt.Sprintf("no row with id %d", id))
}

// NotFoundError is returned by identity lookups.
type NotFoundError struct {
	Entity EntityType
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }
