package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
)

// Pipeline error codes, one per failure class of the ingestion pipeline.
const (
	ErrUnroutable ErrorCode = iota + 2000
	ErrUnverified
	ErrAdapterFailure
	ErrMediaUnavailable
	ErrNotificationFailed
	ErrPhaseWriteFailed
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Unroutable(sender string) *AppError {
	return &AppError{
		Code:    ErrUnroutable,
		Message: fmt.Sprintf("no channel registered for %s", sender),
	}
}

func Unverified(sender string) *AppError {
	return &AppError{
		Code:    ErrUnverified,
		Message: fmt.Sprintf("channel for %s is not verified", sender),
	}
}

func AdapterFailure(adapter string, err error) *AppError {
	return &AppError{
		Code:    ErrAdapterFailure,
		Message: fmt.Sprintf("%s adapter failed", adapter),
		Err:     err,
	}
}

func MediaUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrMediaUnavailable,
		Message: "media unavailable",
		Err:     err,
	}
}

func NotificationFailed(mentionID string, err error) *AppError {
	return &AppError{
		Code:    ErrNotificationFailed,
		Message: fmt.Sprintf("notification for mention %s failed", mentionID),
		Err:     err,
	}
}

func PhaseWriteFailed(projectID string, err error) *AppError {
	return &AppError{
		Code:    ErrPhaseWriteFailed,
		Message: fmt.Sprintf("phase write for project %s failed", projectID),
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

// HTTPStatus maps an error onto the response status used by handlers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
