package service

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable code attached to every service failure.
type ErrorCode string

const (
	// CodeUnauthenticated: no resolved caller identity on the request.
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// CodeBadInput: malformed or missing required field.
	CodeBadInput ErrorCode = "BAD_USER_INPUT"
	// CodeNotFound: entity absent OR caller lacks rights. Deliberately one
	// code for both so non-owners cannot probe for existence.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeInternal: persistence or unexpected failure; the underlying
	// message is forwarded for diagnostics only.
	CodeInternal ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Error is a service failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Extensions satisfies the GraphQL extended-error contract so the code
// lands in the response's error extensions.
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Code)}
}

func errUnauthenticated() error {
	return &Error{Code: CodeUnauthenticated, Message: "authentication required"}
}

func errBadInput(msg string) error {
	return &Error{Code: CodeBadInput, Message: msg}
}

func errNotFound(entity string) error {
	return &Error{Code: CodeNotFound, Message: entity + " not found or not accessible"}
}

func errInternal(err error) error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf("internal error: %v", err), cause: err}
}

// HasCode reports whether err carries the given service error code.
func HasCode(err error, code ErrorCode) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
