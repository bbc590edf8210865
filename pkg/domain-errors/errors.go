// Package domainerrors defines the coded error type returned by workflow
// operations. Services attach a code so the transport layer can map the error
// to a wire status without inspecting message text; the message itself is safe
// to show to the caller.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error by what the caller can do about it.
type Code string

const (
	// CodeValidation marks bad or missing input (e.g. rejection without remark).
	CodeValidation Code = "validation"
	// CodeUnauthorized marks requests with no usable identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an actor acting on an entity they do not own.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks duplicate registrations and exhausted capacity.
	CodeConflict Code = "conflict"
	// CodeInvalidState marks an operation not valid from the entity's
	// current state (pay a paid order, audit an audited registration).
	CodeInvalidState Code = "invalid_state"
	// CodeExpired marks an order past its payment deadline.
	CodeExpired Code = "expired"
	// CodeUpstream marks persistence failures and transaction aborts. These
	// surface unchanged; the workflow never retries on the caller's behalf.
	CodeUpstream Code = "upstream"
)

// Error carries a code, a caller-safe message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code of the outermost coded error, defaulting to
// CodeUpstream for plain errors so nothing leaks as a success.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUpstream
}

// MessageOf extracts the caller-safe message of a coded error. Plain errors
// yield an empty message; transport must not echo their text.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps an error code to the wire status used by the HTTP layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
