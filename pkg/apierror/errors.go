package apierror

import (
	"errors"
	"fmt"
)

// Problem is the error response body emitted by the API, following RFC 7807.
type Problem struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// NewProblem builds a problem object for the given status code
func NewProblem(status int, title, detail string) *Problem {
	return &Problem{
		Detail: detail,
		Status: status,
		Title:  title,
		Type:   "about:blank",
	}
}

// ErrNotFound signals that a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// BadRequestError signals a client error (validation, coercion, bad cursor).
// The handler maps it to HTTP 400.
type BadRequestError struct {
	Detail string
}

func (e *BadRequestError) Error() string {
	return e.Detail
}

// NewBadRequest creates a BadRequestError with a formatted detail message
func NewBadRequest(format string, args ...interface{}) *BadRequestError {
	return &BadRequestError{Detail: fmt.Sprintf(format, args...)}
}

// UnauthorizedError signals a row-level authorization denial.
// The handler maps it to HTTP 401.
type UnauthorizedError struct {
	Detail string
}

func (e *UnauthorizedError) Error() string {
	return e.Detail
}

// NewUnauthorized creates an UnauthorizedError with a formatted detail message
func NewUnauthorized(format string, args ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{Detail: fmt.Sprintf(format, args...)}
}

// ConfigError signals an incomplete or inconsistent route configuration.
// The handler maps it to HTTP 500.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return e.Detail
}

// NewConfigError creates a ConfigError with a formatted detail message
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// IsBadRequest reports whether err is a BadRequestError
func IsBadRequest(err error) bool {
	var target *BadRequestError
	return errors.As(err, &target)
}

// IsUnauthorized reports whether err is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// IsConfigError reports whether err is a ConfigError
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
