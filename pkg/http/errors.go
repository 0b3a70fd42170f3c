package http

import (
	"fmt"
	"net/http"
)

// AppError is an error carrying a semantic HTTP status, written to
// clients through AppErrorResponse.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// WithField names the offending request field.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// WithError attaches the underlying cause. The cause stays out of the
// response body.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func statusError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// BadRequestError builds a 400-status error.
func BadRequestError(message string) *AppError {
	return statusError("ERR_BAD_REQUEST", http.StatusBadRequest, message)
}

// BadRequestErrorf is BadRequestError with a format string.
func BadRequestErrorf(format string, args ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, args...))
}

// NotFoundError builds a 404-status error.
func NotFoundError(message string) *AppError {
	return statusError("ERR_NOT_FOUND", http.StatusNotFound, message)
}

// NotFoundErrorf is NotFoundError with a format string.
func NotFoundErrorf(format string, args ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, args...))
}

// InternalError builds a 500-status error.
func InternalError(message string) *AppError {
	return statusError("ERR_INTERNAL", http.StatusInternalServerError, message)
}
