// Package apperr defines the error taxonomy shared by every component and
// the HTTP status mapping used at the API boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds enumerated in the error handling design.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindValidation           Kind = "Validation"
	KindAuthentication       Kind = "Authentication"
	KindAuthorization        Kind = "Authorization"
	KindConflict             Kind = "Conflict"
	KindRateLimited          Kind = "RateLimited"
	KindQuotaExceeded        Kind = "QuotaExceeded"
	KindUpstreamUnavailable  Kind = "UpstreamUnavailable"
	KindFileProcessing       Kind = "FileProcessing"
)

// Error is the concrete error type carried through the system. Components
// return *Error (or wrap one) rather than ad hoc sentinel errors so the API
// layer can map consistently.
type Error struct {
	Kind       Kind
	Message    string
	Field      string        // set for Validation errors naming the offending field
	RetryAfter int           // seconds, set for RateLimited
	Err        error         // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func NotFound(msg string) *Error     { return new_(KindNotFound, msg) }
func Validation(msg string) *Error   { return new_(KindValidation, msg) }
func Authentication(msg string) *Error { return new_(KindAuthentication, msg) }
func Authorization(msg string) *Error  { return new_(KindAuthorization, msg) }
func Conflict(msg string) *Error       { return new_(KindConflict, msg) }
func FileProcessing(msg string) *Error { return new_(KindFileProcessing, msg) }

func UpstreamUnavailable(msg string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: msg, Err: cause}
}

func QuotaExceeded(reason string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: reason}
}

func RateLimited(msg string, retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfterSeconds}
}

// ValidationField is a convenience constructor for field-specific validation
// errors (password strength, file type, etc).
func ValidationField(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
