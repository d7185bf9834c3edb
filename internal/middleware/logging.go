// Package middleware provides HTTP middleware for GuardiaPass.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
)

// statusRecorder remembers the status and size of a response so outer
// middleware can log and label it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestID reuses a client supplied X-Request-ID when it is a UUID and
// mints a new one otherwise.
func requestID(r *http.Request) string {
	if id, err := uuid.Parse(r.Header.Get("X-Request-ID")); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Logging assigns each request an ID, exposes it in the X-Request-ID header
// and the request context, and logs one line per request once it completes.
// Server errors log at error level and client errors at warn. Bodies are
// never logged.
func Logging(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set("X-Request-ID", id)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(logging.WithRequestID(r.Context(), id)))

			logger.Log(r.Context(), statusLevel(rec.status), "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"size", rec.size,
				"duration", time.Since(start),
				"request_id", id,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Recovery converts a handler panic into the standard INTERNAL_ERROR body,
// unless the handler already started its response. The panic is logged
// through the request's logger. http.ErrAbortHandler is re-raised for the
// server to handle.
func Recovery() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				logging.Logger(r.Context()).Error("panic_recovered",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"response_started", rec.wroteHeader,
					"stack", string(debug.Stack()),
				)
				if !rec.wroteHeader {
					jsonError(rec, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
