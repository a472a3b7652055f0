package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindNoOwnerAvailable
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNoOwnerAvailable:
		return "no_owner_available"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status maps a kind to the HTTP status written at the handler boundary.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindNoOwnerAvailable:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a business-rule failure that is safe to show to a client.
// Err carries the underlying cause, which is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, apperr.NotFound("")) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithField attaches a key that is serialized next to the message.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message, nil) }

func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message, nil) }

func NotFound(message string) *Error { return New(KindNotFound, message, nil) }

func Conflict(message string) *Error { return New(KindConflict, message, nil) }

func NoOwnerAvailable(message string) *Error { return New(KindNoOwnerAvailable, message, nil) }

func RateLimited(message string) *Error { return New(KindRateLimited, message, nil) }

func Internal(message string, err error) *Error { return New(KindInternal, message, err) }

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
