package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need a machine-distinguishable outcome.
type Kind string

const (
	KindDuplicateCode Kind = "duplicate_code"
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindInvalidInput  Kind = "invalid_input"
	KindTransientIO   Kind = "transient_io"
	KindUnknown       Kind = "unknown"
)

// Error is the structured error returned by portal services.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

// New builds an Error whose code is "<operation>.<reason>".
func New(kind Kind, operation, reason, message string, cause error) error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the operation-scoped machine code.
func (e *Error) Code() string {
	return e.code
}

// Message returns the human readable message, falling back to the kind.
func (e *Error) Message() string {
	if e.message == "" {
		return string(e.kind)
	}
	return e.message
}

// KindOf extracts the Kind of err, or KindUnknown when err is not a portal failure.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.kind
	}
	return KindUnknown
}

// Is reports whether err carries the provided kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
