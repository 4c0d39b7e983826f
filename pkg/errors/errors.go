// Package errors defines the error taxonomy shared by the indexing and search
// paths, plus the mapping from those errors to transport status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("index storage failure")
	ErrNormalization     = errors.New("normalization failed")
	ErrNotFound          = errors.New("source document not found")
	ErrSourceUnavailable = errors.New("content source unavailable")
	ErrInternal          = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Validation builds a 400-class error for malformed queries or settings.
func Validation(format string, args ...any) *AppError {
	return Newf(ErrValidation, http.StatusBadRequest, format, args...)
}

// Storage wraps a store failure so callers can match it with errors.Is.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// NotFound reports that the source item with the given id no longer exists.
func NotFound(sourceID string) *AppError {
	return Newf(ErrNotFound, http.StatusNotFound, "source item %s", sourceID)
}

// Normalization reports an item that could not be turned into an index record.
func Normalization(sourceID, reason string) *AppError {
	return Newf(ErrNormalization, http.StatusUnprocessableEntity, "item %s: %s", sourceID, reason)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNormalization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorage), errors.Is(err, ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
