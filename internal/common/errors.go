package common

import (
	"errors"
	"net/http"
)

// AppError pairs an error with the code and HTTP status rendered to clients.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BadRequest reports a client error. The message of err is shown to the caller.
func BadRequest(err error) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
}

// Misconfigured reports a server-side configuration problem.
func Misconfigured(message string, err error) *AppError {
	return &AppError{Code: "CONFIG", Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Internal hides err behind a generic message.
func Internal(message string, err error) *AppError {
	return &AppError{Code: "INTERNAL", Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// AsAppError returns the AppError in err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
