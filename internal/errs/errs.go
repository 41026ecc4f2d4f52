// Package errs classifies domain errors into the kinds the transport layers map
// to status codes, acknowledgements or retries.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindSkip         Kind = "idempotent_skip"
	KindTransient    Kind = "transient_failure"
	KindTerminal     Kind = "terminal_failure"
	KindInternal     Kind = "internal_error"
)

// Error is a sentinel carrying a kind and a stable code.
type Error struct {
	Kind Kind
	Code string
}

func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func (e *Error) Error() string {
	return e.Code
}

// Detail wraps err with a human readable message while keeping errors.Is intact.
func Detail(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first classified error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return string(KindInternal)
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
