package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Timeout bounds request handling. When the deadline passes before the
// handler has written anything, the client gets a 504 and the handler keeps
// running against an already-cancelled context. A timeout of zero or less
// disables the bound.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &replyTracker{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if !tw.replied() {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timeout"}`))
				}
			}
		})
	}
}

// replyTracker records whether the wrapped handler has started a response,
// so the timeout path never writes a second status line.
type replyTracker struct {
	http.ResponseWriter
	wrote atomic.Bool
}

func (t *replyTracker) replied() bool { return t.wrote.Load() }

func (t *replyTracker) WriteHeader(code int) {
	t.wrote.Store(true)
	t.ResponseWriter.WriteHeader(code)
}

func (t *replyTracker) Write(b []byte) (int, error) {
	t.wrote.Store(true)
	return t.ResponseWriter.Write(b)
}
