// Package apperr defines the error kinds shared by repositories and services.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for callers and the HTTP layer.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindProvision  Kind = "provisioning"
	KindTransient  Kind = "transient_storage"
	// KindStorageMissing marks a partition or table that should exist but does not.
	KindStorageMissing Kind = "storage_missing"
)

// ErrInvalidCredentials is returned when an email/secret pair does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// FieldError is one violated field of an input shape.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violated field of a rejected input. It never reaches storage.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validation builds a ValidationError for a single field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Error is the kinded error used for conflict, not-found, provisioning and storage failures.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Public returns the message without the wrapped cause.
func (e *Error) Public() string { return e.Message }

// Conflict reports a duplicate email, participant id or event name.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing referenced entity.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Provisioning wraps a partition or table create/drop failure.
func Provisioning(err error, format string, args ...any) error {
	return &Error{Kind: KindProvision, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transient wraps a failure of the execution gateway itself. Callers may retry.
func Transient(err error, format string, args ...any) error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// StorageMissing wraps a query against a partition or table that is not provisioned.
func StorageMissing(err error, format string, args ...any) error {
	return &Error{Kind: KindStorageMissing, Message: fmt.Sprintf(format, args...), Err: err}
}

// PublicMessage returns the caller-facing text of err: the message of a
// kinded error without its cause, otherwise err.Error().
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Public()
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsNotFound is shorthand for Is(err, KindNotFound).
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsStorageMissing is shorthand for Is(err, KindStorageMissing).
func IsStorageMissing(err error) bool { return Is(err, KindStorageMissing) }

// IsConflict is shorthand for Is(err, KindConflict).
func IsConflict(err error) bool { return Is(err, KindConflict) }
