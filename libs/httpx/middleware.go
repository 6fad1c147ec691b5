package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware sees the request first. Nil entries are
// skipped, which lets constructors opt out when unconfigured.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != nil {
			h = m[i](h)
		}
	}
	return h
}

// WithBodyLimit caps request bodies; DecodeJSON reports the overflow as a bad body.
func WithBodyLimit(limit int64) Middleware {
	if limit <= 0 {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

var timeoutBody = func() string {
	b, _ := json.Marshal(envelope{Error: &errorBody{Kind: "timeout", Message: "request timed out"}})
	return string(b)
}()

// WithTimeout answers 503 with an error envelope when a handler overruns d.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, timeoutBody)
	}
}

// WithRecover converts a panic into a 500 envelope. http.ErrAbortHandler is re-raised.
func WithRecover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				Logger(r.Context(), logger).ErrorContext(r.Context(), "handler panic",
					"panic", rec, "stack", string(debug.Stack()))
				WriteError(w, http.StatusInternalServerError, "storage", "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
