package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAction reports a channel action that does not resolve to a
	// registered pod and a schema-known action.
	ErrInvalidAction = errors.New("invalid pod or action")

	// ErrConstraint reports an unresolvable action on an already persisted
	// record. This is a non-recoverable invariant breach: the record should
	// never have reached this stage unvalidated.
	ErrConstraint = errors.New("constraint violation")

	// ErrNoCredential reports an absent delegated credential for a pod that
	// requires one.
	ErrNoCredential = errors.New("no credential")
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates the field failures of one entity write attempt.
// It is surfaced synchronously to the caller attempting the save.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%s validation failed: %s", e.Entity, strings.Join(msgs, "; "))
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) ok() bool {
	return len(e.Fields) == 0
}
