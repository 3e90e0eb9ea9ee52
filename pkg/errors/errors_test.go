package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrIngest, http.StatusBadRequest, "field %q too large", "body")
	if !stderrors.Is(err, ErrIngest) {
		t.Error("expected errors.Is(err, ErrIngest)")
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		t.Fatal("expected errors.As to find *AppError")
	}
	if appErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", appErr.StatusCode)
	}
	want := `ingest error: field "body" too large`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrQuerySyntax, http.StatusBadRequest},
		{ErrIngest, http.StatusBadRequest},
		{ErrConfiguration, http.StatusBadRequest},
		{ErrDocumentNotFound, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrIndexCorrupt, http.StatusInternalServerError},
		{stderrors.New("anything else"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrQuerySyntax), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPStatusCodePrefersAppErrorCode(t *testing.T) {
	err := New(ErrQuerySyntax, http.StatusTeapot, "explicit code wins")
	if got := HTTPStatusCode(err); got != http.StatusTeapot {
		t.Errorf("HTTPStatusCode = %d, want 418", got)
	}
}
