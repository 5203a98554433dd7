package apiclient

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the client can return.
type Kind int

const (
	// KindValidation means the request was rejected as invalid, either locally before
	// any network call or by the backend (400/422).
	KindValidation Kind = iota + 1
	// KindNetwork means the request did not complete (transport error, timeout).
	KindNetwork
	// KindAuthorization means the backend explicitly denied the caller (401/403).
	KindAuthorization
	// KindConflict means the request conflicts with existing state (409).
	KindConflict
	// KindBackend covers every other non-2xx response and malformed bodies.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNetwork:
		return "network_error"
	case KindAuthorization:
		return "authorization_error"
	case KindConflict:
		return "conflict"
	case KindBackend:
		return "backend_error"
	default:
		return "unknown"
	}
}

// Error is the single failure shape returned by the client.
type Error struct {
	Kind       Kind
	StatusCode int
	// Message is human readable; for backend failures it is the message the backend sent.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError returns a local validation failure. No request is implied.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the backend-provided message carried by err, if any.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// kindForStatus maps a non-2xx HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch status {
	case 400, 422:
		return KindValidation
	case 401, 403:
		return KindAuthorization
	case 409:
		return KindConflict
	default:
		return KindBackend
	}
}
