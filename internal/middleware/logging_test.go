package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureDefault routes slog.Default into a buffer for the test.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogging_SetsRequestID(t *testing.T) {
	var gotID string
	handler := Logging(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID == "" {
		t.Fatal("request ID not set in context")
	}
	if w.Header().Get("X-Request-ID") != gotID {
		t.Errorf("X-Request-ID = %q, want %q", w.Header().Get("X-Request-ID"), gotID)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestLogging_ClientRequestID(t *testing.T) {
	handler := Logging(discardLogger())(okHandler())
	clientID := uuid.NewString()

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"uuid is reused", clientID, true},
		{"garbage is replaced", "x\ny injected", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", tt.header)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if (got == tt.header) != tt.reuse {
				t.Errorf("X-Request-ID = %q, client sent %q", got, tt.header)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("X-Request-ID %q is not a UUID", got)
			}
		})
	}
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/passwords", nil))

			var line struct {
				Level  string `json:"level"`
				Msg    string `json:"msg"`
				Status int    `json:"status"`
			}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line: %v", err)
			}
			if line.Level != tt.level || line.Msg != "http_request" || line.Status != tt.status {
				t.Errorf("log = %+v, want level %s", line, tt.level)
			}
		})
	}
}

func TestRecovery_WritesErrorBody(t *testing.T) {
	logs := captureDefault(t)
	handler := Logging(discardLogger())(Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp apiError
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error code = %q, want INTERNAL_ERROR", resp.Error.Code)
	}

	out := logs.String()
	if !strings.Contains(out, "panic_recovered") || !strings.Contains(out, w.Header().Get("X-Request-ID")) {
		t.Errorf("panic log missing event or request ID: %s", out)
	}
}

func TestRecovery_ResponseAlreadyStarted(t *testing.T) {
	captureDefault(t)
	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late failure")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w.Body.String() != "partial" {
		t.Errorf("body = %q, want the handler's partial body only", w.Body.String())
	}
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if p := recover(); p != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", p)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP returned instead of panicking")
}
