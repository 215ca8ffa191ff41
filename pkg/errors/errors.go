package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error. Code is the discriminant the
// presentation layer switches on.
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

// Kind returns the wire name of the error code.
func (e *AppError) Kind() string {
	return e.Code.String()
}

// StatusCode maps the error to an HTTP status.
func (e *AppError) StatusCode() int {
	return e.Code.StatusCode()
}

// Retryable reports whether repeating the same call may succeed.
func (e *AppError) Retryable() bool {
	return e.Code == ErrTransient
}

const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrInvalidState
	ErrInvalidInterval
	ErrSlotConflict
	ErrUnverifiedDoctor
	ErrTooEarly
	ErrWindowClosed
	ErrTransient
	ErrConflict
	ErrRateLimited
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:         "NOT_FOUND",
	ErrBadRequest:       "BAD_REQUEST",
	ErrUnauthorized:     "UNAUTHENTICATED",
	ErrForbidden:        "AUTHORIZATION",
	ErrInternal:         "INTERNAL",
	ErrInvalidState:     "INVALID_STATE",
	ErrInvalidInterval:  "INVALID_INTERVAL",
	ErrSlotConflict:     "SLOT_CONFLICT",
	ErrUnverifiedDoctor: "UNVERIFIED_DOCTOR",
	ErrTooEarly:         "TOO_EARLY",
	ErrWindowClosed:     "WINDOW_CLOSED",
	ErrTransient:        "TRANSIENT",
	ErrConflict:         "CONFLICT",
	ErrRateLimited:      "RATE_LIMITED",
}

var codeStatus = map[ErrorCode]int{
	ErrNotFound:         http.StatusNotFound,
	ErrBadRequest:       http.StatusBadRequest,
	ErrUnauthorized:     http.StatusUnauthorized,
	ErrForbidden:        http.StatusForbidden,
	ErrInternal:         http.StatusInternalServerError,
	ErrInvalidState:     http.StatusConflict,
	ErrInvalidInterval:  http.StatusBadRequest,
	ErrSlotConflict:     http.StatusConflict,
	ErrUnverifiedDoctor: http.StatusUnprocessableEntity,
	ErrTooEarly:         http.StatusTooEarly,
	ErrWindowClosed:     http.StatusGone,
	ErrTransient:        http.StatusServiceUnavailable,
	ErrConflict:         http.StatusConflict,
	ErrRateLimited:      http.StatusTooManyRequests,
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", int(c))
}

func (c ErrorCode) StatusCode() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return Is(err, ErrTransient)
}

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

// Forbidden is the authorization failure: the actor is known but lacks
// permission for the entity or action.
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func InvalidState(message string) *AppError {
	return &AppError{Code: ErrInvalidState, Message: message}
}

func InvalidInterval(message string) *AppError {
	return &AppError{Code: ErrInvalidInterval, Message: message}
}

func SlotConflict(err error) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: "requested time overlaps an existing appointment",
		Err:     err,
	}
}

func UnverifiedDoctor(message string) *AppError {
	return &AppError{Code: ErrUnverifiedDoctor, Message: message}
}

func TooEarly(message string) *AppError {
	return &AppError{Code: ErrTooEarly, Message: message}
}

func WindowClosed(message string) *AppError {
	return &AppError{Code: ErrWindowClosed, Message: message}
}

func Conflict(message string, err error) *AppError {
	return &AppError{Code: ErrConflict, Message: message, Err: err}
}

// Transient wraps a storage or timeout failure that may succeed on retry.
func Transient(err error) *AppError {
	return &AppError{
		Code:    ErrTransient,
		Message: "temporarily unavailable, please retry",
		Err:     err,
	}
}

func RateLimited(err error) *AppError {
	return &AppError{Code: ErrRateLimited, Message: "too many requests", Err: err}
}
