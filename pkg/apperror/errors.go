package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // wrapped internal error, never exposed to the client
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// The codes below mirror the error taxonomy: UNAUTHENTICATED, FORBIDDEN,
// NOT_FOUND, VALIDATION_ERROR, BAD_REQUEST, CONFLICT, RATE_LIMIT_EXCEEDED,
// INTERNAL.

func ErrUnauthenticated() *AppError {
	return New("UNAUTHENTICATED", "missing or invalid caller identity", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("FORBIDDEN", "caller is not allowed to access this resource", http.StatusForbidden)
}

func ErrNotFound(entity string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrValidation(message string) *AppError {
	return New("VALIDATION_ERROR", message, http.StatusBadRequest)
}

func ErrBadRequest(message string) *AppError {
	return New("BAD_REQUEST", message, http.StatusBadRequest)
}

func ErrConflict(message string) *AppError {
	return New("CONFLICT", message, http.StatusConflict)
}

func ErrInvalidStateTransition() *AppError {
	return New("CONFLICT", "transaction is not in a state that allows this operation", http.StatusConflict)
}

func ErrRateLimitExceeded() *AppError {
	return New("RATE_LIMIT_EXCEEDED", "too many requests", http.StatusTooManyRequests)
}

func ErrUnknownProvider(provider string) *AppError {
	return New("VALIDATION_ERROR", fmt.Sprintf("unknown provider %q", provider), http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VALIDATION_ERROR", "amount must be positive", http.StatusBadRequest)
}

func ErrWebhookSourceRejected() *AppError {
	return New("FORBIDDEN", "webhook source is not allowlisted for this provider", http.StatusForbidden)
}

func ErrWebhookSignatureInvalid() *AppError {
	return New("UNAUTHENTICATED", "webhook signature verification failed", http.StatusUnauthorized)
}

// Internal wraps an unexpected internal error as INTERNAL.
func Internal(err error) *AppError {
	return Wrap("INTERNAL", "internal server error", http.StatusInternalServerError, err)
}
