// Package errors defines the sentinel errors shared across the engine and
// an AppError wrapper that carries an HTTP status code for the transport
// layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrQuerySyntax marks malformed query text. Recoverable: the caller
	// can re-prompt with a corrected query.
	ErrQuerySyntax = errors.New("query syntax error")

	// ErrConfiguration marks an invalid synonym-class definition or other
	// bad administrative input. Rejected atomically.
	ErrConfiguration = errors.New("configuration error")

	// ErrIngest marks a malformed document payload. Only the offending
	// document is rejected; corpus state is unaffected.
	ErrIngest = errors.New("ingest error")

	// ErrIndexCorrupt marks a broken internal invariant (postings order,
	// snapshot checksum). Not caused by bad input; treated as fatal.
	ErrIndexCorrupt = errors.New("index corrupt")

	ErrDocumentNotFound = errors.New("document not found")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrTimeout          = errors.New("operation timed out")
	ErrInternal         = errors.New("internal error")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrIngest), errors.Is(err, ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
