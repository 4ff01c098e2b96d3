package micropub

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes mandated by the Micropub spec. Every failure in the
// request pipeline is one of these; the HTTP boundary maps the code to a
// status and a JSON body.
const (
	CodeForbidden         = "forbidden"
	CodeInsufficientScope = "insufficient_scope"
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "error"
)

// Error is a protocol-level failure with a machine-readable code.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func Forbidden(desc string) *Error {
	return &Error{Code: CodeForbidden, Description: desc}
}

func InsufficientScope(desc string) *Error {
	return &Error{Code: CodeInsufficientScope, Description: desc}
}

func InvalidRequest(desc string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: desc}
}

func Internal(desc string) *Error {
	return &Error{Code: CodeInternal, Description: desc}
}

// AsError coerces any failure into a protocol error, wrapping
// unclassified causes as internal.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err.Error())
}

// Status returns the HTTP status for a protocol error code.
func Status(code string) int {
	switch code {
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInsufficientScope:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
