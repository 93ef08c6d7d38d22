package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	Internal   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrNotFound = &Error{
		Code:       "not_found",
		Message:    "The requested resource was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrUnauthorized = &Error{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrBadRequest = &Error{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidConfiguration = &Error{
		Code:       "invalid_configuration",
		Message:    "No valid processing operation was requested",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidImage = &Error{
		Code:       "invalid_image",
		Message:    "The file is not a readable image",
		StatusCode: http.StatusBadRequest,
	}

	ErrTransformFailed = &Error{
		Code:       "transform_failed",
		Message:    "Image transformation failed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrStorageFailed = &Error{
		Code:       "storage_failed",
		Message:    "Storage operation failed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrInternal = &Error{
		Code:       "internal_error",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}
)

// QuotaError reports an admission denial with the counter values the caller
// saw, so clients can render used/limit without a second lookup.
type QuotaError struct {
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily processing quota exceeded: %d/%d", e.Used, e.Limit)
}

func QuotaExceeded(used, limit int) *QuotaError {
	return &QuotaError{Used: used, Limit: limit}
}

func New(code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Internal:   err,
	}
}

func WrapWithMessage(err error, code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

func StatusCode(err error) int {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return http.StatusTooManyRequests
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Error()
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return "quota_exceeded"
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
