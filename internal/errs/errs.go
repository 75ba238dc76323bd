// Package errs carries a stable error code alongside a message that is safe to
// show API and MCP clients.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure independently of the transport.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"
	NotFound           Code = "not_found"
	FailedPrecondition Code = "failed_precondition"
	Rejected           Code = "rejected"
	PermissionDenied   Code = "permission_denied"
	ResourceExhausted  Code = "resource_exhausted"
	Canceled           Code = "canceled"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned.
const statusClientClosedRequest = 499

var httpStatus = map[Code]int{
	InvalidArgument:    http.StatusBadRequest,
	NotFound:           http.StatusNotFound,
	FailedPrecondition: http.StatusConflict,
	Rejected:           http.StatusUnprocessableEntity,
	PermissionDenied:   http.StatusForbidden,
	ResourceExhausted:  http.StatusTooManyRequests,
	Canceled:           statusClientClosedRequest,
	Unavailable:        http.StatusServiceUnavailable,
	Internal:           http.StatusInternalServerError,
}

// Codes lists every known code.
var Codes = []Code{
	InvalidArgument, NotFound, FailedPrecondition, Rejected, PermissionDenied,
	ResourceExhausted, Canceled, Unavailable, Internal,
}

// Error is a coded error. Message is client-facing; Err is for logs only.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and client message to cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func lookup(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !errors.As(err, &coded) || coded == nil {
		return nil, false
	}
	return coded, true
}

// CodeOf returns the code of the first coded error in the chain, or Internal.
func CodeOf(err error) Code {
	if coded, ok := lookup(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	_, ok := lookup(err)
	return ok && CodeOf(err) == code
}

// MessageOf returns the client message. Untyped errors become
// "internal error" so file paths and provider responses stay in the logs.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := lookup(err); ok && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to its response status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
