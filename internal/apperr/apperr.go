// Package apperr defines the error taxonomy shared by repositories, the
// authorization gate, and the HTTP layer. Errors carry a Kind so that the API
// layer can map them to status codes without string matching, and a message
// safe to return to callers. The underlying cause (if any) is wrapped and
// reachable via errors.Unwrap for logging, but is never serialized into
// responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// Internal is the zero value: an unexpected failure (DB down, bug).
	Internal Kind = iota
	// Unauthenticated means the caller presented no or invalid credentials.
	Unauthenticated
	// Forbidden means the caller is authenticated but lacks permission.
	Forbidden
	// NotFound means the referenced entity does not exist.
	NotFound
	// InvalidArgument means the request payload failed validation.
	InvalidArgument
	// Conflict means the operation violates a uniqueness or lifecycle rule.
	Conflict
)

// String returns the kind name used in logs and error output.
func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a classified error with a caller-safe message.
func E(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. The message is what callers see; err is
// kept for logs.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed. Unclassified errors
// report Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// MessageOf returns the caller-safe message of err, or a generic message for
// unclassified errors so internal detail never leaks into responses.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}
